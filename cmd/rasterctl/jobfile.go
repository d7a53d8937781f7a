package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// jobFile is the TOML description of a retrieval job. Flags given on the
// command line override the corresponding file values.
type jobFile struct {
	Mask      string   `toml:"mask"`
	MaskCRS   string   `toml:"mask_crs"`
	Datasets  []string `toml:"datasets"`
	TargetCRS string   `toml:"target_crs"`
	Stitch    bool     `toml:"stitch"`
	Out       string   `toml:"out"`
}

func loadJobFile(path string) (jobFile, error) {
	var jf jobFile
	contents, err := os.ReadFile(path)
	if err != nil {
		return jf, fmt.Errorf("read job file: %w", err)
	}
	if err := toml.Unmarshal(contents, &jf); err != nil {
		return jf, fmt.Errorf("parse job file %s: %w", path, err)
	}
	return jf, nil
}
