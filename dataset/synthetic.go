package dataset

import (
	"fmt"
	"math/rand"
)

// Blobs generates a classification dataset: each class is a Gaussian
// cluster around its own random center, and labels are one-hot. With
// classes == 1 the labels are a single 0/1 column: 1 when the first feature
// lies above the cluster center.
func Blobs(rng *rand.Rand, samples, features, classes int, spread float64) (*Dataset, error) {
	if samples <= 0 || features <= 0 || classes <= 0 {
		return nil, fmt.Errorf("samples, features and classes must be positive")
	}
	centers := make([][]float64, classes)
	for c := range centers {
		centers[c] = make([]float64, features)
		for f := range centers[c] {
			centers[c][f] = rng.Float64()*4 - 2
		}
	}

	inputs := make([][]float32, samples)
	labels := make([][]float32, samples)
	for i := 0; i < samples; i++ {
		class := i % classes
		row := make([]float32, features)
		for f := range row {
			row[f] = float32(centers[class][f] + rng.NormFloat64()*spread)
		}
		inputs[i] = row

		if classes == 1 {
			label := float32(0)
			if row[0] > float32(centers[0][0]) {
				label = 1
			}
			labels[i] = []float32{label}
			continue
		}
		oneHot := make([]float32, classes)
		oneHot[class] = 1
		labels[i] = oneHot
	}

	inputColumns := make([]string, features)
	for f := range inputColumns {
		inputColumns[f] = fmt.Sprintf("x%d", f)
	}
	outputColumns := make([]string, len(labels[0]))
	for c := range outputColumns {
		outputColumns[c] = fmt.Sprintf("class_%d", c)
	}
	return FromRows(inputs, labels, WithColumns(inputColumns, outputColumns))
}
