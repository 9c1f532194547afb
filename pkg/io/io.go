package io

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"deepice/pkg/model"
)

func SaveModel(model *model.Model, writer io.Writer) error {
	encoder := gob.NewEncoder(writer)
	err := encoder.Encode(model)
	if err != nil {
		return fmt.Errorf("error encoding model: %w", err)
	}
	return nil
}

func LoadModel(input io.Reader) (*model.Model, error) {
	decoder := gob.NewDecoder(input)
	model := model.Model{}
	err := decoder.Decode(&model)
	if err != nil {
		return nil, fmt.Errorf("error decoding model: %w", err)
	}
	return &model, nil
}

func SaveModelFile(m *model.Model, fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("error creating model file %s: %w", fileName, err)
	}
	defer f.Close()
	if err := SaveModel(m, f); err != nil {
		return err
	}
	return f.Close()
}

func LoadModelFile(fileName string) (*model.Model, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("error opening model file %s: %w", fileName, err)
	}
	defer f.Close()
	return LoadModel(f)
}
