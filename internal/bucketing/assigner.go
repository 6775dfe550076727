// Package bucketing maps subjects to experiment variants.
//
// Assignment is a pure function of (subject, layer, salt): nothing is stored, so any
// process can re-derive a historical assignment. Each layer hashes with its own salt,
// which decorrelates a subject's variant in one layer from its variant in another.
package bucketing

import (
	"crypto/md5"
	"math/big"

	"abtrust/domain/experiment"
	"abtrust/internal/errors"
)

// Buckets is the number of hash buckets each layer is divided into
const Buckets = 100

var bucketModulus = big.NewInt(Buckets)

// hashKey joins the inputs the same way historical assignments were keyed
func hashKey(subjectID, layerName, salt string) string {
	return subjectID + "_" + layerName + "_" + salt
}

// Bucket returns the subject's bucket in [0, Buckets) for a layer.
//
// The MD5 digest is read as an unsigned 128-bit big-endian integer and reduced modulo 100.
// 2^128 is not a multiple of 100, so buckets 0..55 have one more preimage than the rest:
// a relative bias below 1e-36.
func Bucket(subjectID, layerName, salt string) int {
	sum := md5.Sum([]byte(hashKey(subjectID, layerName, salt)))
	v := new(big.Int).SetBytes(sum[:])
	return int(v.Mod(v, bucketModulus).Int64())
}

// Assign places a subject in A or B with an even split
func Assign(subjectID, layerName, salt string) experiment.Variant {
	return AssignSplit(subjectID, layerName, salt, experiment.EvenSplit())
}

// AssignSplit places a subject in the variant whose cumulative weight range holds its bucket.
// Splits are expected to be validated; buckets past an under-weighted split fall into the
// last allocation.
func AssignSplit(subjectID, layerName, salt string, split experiment.Split) experiment.Variant {
	if len(split) == 0 {
		return ""
	}
	return variantForBucket(Bucket(subjectID, layerName, salt), split)
}

func variantForBucket(bucket int, split experiment.Split) experiment.Variant {
	upper := 0
	for _, alloc := range split {
		upper += alloc.Weight
		if bucket < upper {
			return alloc.Variant
		}
	}
	return split[len(split)-1].Variant
}

// Assigner binds a layer to a validated split
type Assigner struct {
	layer experiment.Layer
	split experiment.Split
}

// NewAssigner validates the layer and split
func NewAssigner(layer experiment.Layer, split experiment.Split) (*Assigner, error) {
	if layer.Name == "" {
		return nil, errors.InvalidParameter("layer name is required")
	}
	if err := split.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid split for layer %s", layer.Name)
	}

	owned := make(experiment.Split, len(split))
	copy(owned, split)
	return &Assigner{layer: layer, split: owned}, nil
}

// NewEvenAssigner creates a 50/50 A/B assigner for a layer
func NewEvenAssigner(layer experiment.Layer) (*Assigner, error) {
	return NewAssigner(layer, experiment.EvenSplit())
}

// Layer returns the assigner's layer
func (a *Assigner) Layer() experiment.Layer {
	return a.layer
}

// Split returns a copy of the assigner's split
func (a *Assigner) Split() experiment.Split {
	out := make(experiment.Split, len(a.split))
	copy(out, a.split)
	return out
}

// LayerName implements experiment.VariantResolver
func (a *Assigner) LayerName() string {
	return a.layer.Name
}

// VariantFor implements experiment.VariantResolver
func (a *Assigner) VariantFor(subjectID string) experiment.Variant {
	return variantForBucket(Bucket(subjectID, a.layer.Name, a.layer.Salt), a.split)
}

// Assign returns the full assignment triple for a subject
func (a *Assigner) Assign(subjectID string) experiment.Assignment {
	return experiment.Assignment{
		SubjectID: subjectID,
		Layer:     a.layer.Name,
		Variant:   a.VariantFor(subjectID),
	}
}
