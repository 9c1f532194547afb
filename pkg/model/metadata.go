package model

// DefaultColumns are the pulse columns fed to the model, in input order.
var DefaultColumns = []string{"x", "y", "z", "t", "charge", "auxiliary"}

// Metadata describes the data a model was built for.
type Metadata struct {
	// Pulsemap is the name of the pulse series the model reads
	Pulsemap string

	// Columns are the pulse column names in feature order
	Columns []string
}

func NewMetadata(pulsemap string, columns ...string) *Metadata {
	return &Metadata{Pulsemap: pulsemap, Columns: append([]string(nil), columns...)}
}

func (d *Metadata) FeatureCount() int {
	return len(d.Columns)
}

// ColumnNames returns a copy of the column names in feature order.
func (d *Metadata) ColumnNames() []string {
	return append([]string(nil), d.Columns...)
}

// Model bundles a network with the metadata needed to feed it.
type Model struct {
	MetaData *Metadata
	DeepIce  *DeepIce
}
