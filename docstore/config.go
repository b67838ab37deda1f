// Copyright 2026 The revdoc Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package docstore

import (
	"context"
	"errors"
	"io"

	"gopkg.in/yaml.v3"

	"revdoc.dev/internal/rderr"
)

// Config describes a Store and its collections. It is usually read from a
// YAML file with LoadConfig:
//
//	url: bolt:///var/lib/app/docs.db?nosync=true
//	batchSize: 500
//	collections:
//	  - name: users
//	  - name: follows
//	    kind: edge
//	write:
//	  keepNull: false
//	  waitForDurable: true
type Config struct {
	// URL is passed to URLMux.OpenStore.
	URL         string             `yaml:"url"`
	Collections []CollectionConfig `yaml:"collections"`
	// BatchSize is the default for StatementOptions.BatchSize.
	BatchSize int         `yaml:"batchSize"`
	Write     WriteConfig `yaml:"write"`
}

// CollectionConfig describes one collection. Kind is "document" (the
// default) or "edge".
type CollectionConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

// WriteConfig holds the defaults used for a nil *WriteOptions. Unset
// booleans keep the values of DefaultWriteOptions. KeepNull and
// MergeObjects default to true.
type WriteConfig struct {
	KeepNull       *bool `yaml:"keepNull"`
	MergeObjects   *bool `yaml:"mergeObjects"`
	WaitForDurable *bool `yaml:"waitForDurable"`
	IgnoreErrors   *bool `yaml:"ignoreErrors"`
}

// LoadConfig reads and validates a YAML Config. Unknown fields are errors.
func LoadConfig(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, rderr.Newf(rderr.InvalidArgument, nil, "docstore: empty config")
		}
		return nil, rderr.Newf(rderr.InvalidArgument, err, "docstore: parsing config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.URL == "" {
		return rderr.Newf(rderr.InvalidArgument, nil, "docstore: config has no url")
	}
	if cfg.BatchSize < 0 {
		return rderr.Newf(rderr.InvalidArgument, nil, "docstore: negative batchSize %d", cfg.BatchSize)
	}
	seen := map[string]bool{}
	for _, cc := range cfg.Collections {
		if !validCollectionName(cc.Name) {
			return rderr.Newf(rderr.InvalidArgument, nil, "docstore: invalid collection name %q", cc.Name)
		}
		if seen[cc.Name] {
			return rderr.Newf(rderr.InvalidArgument, nil, "docstore: collection %q listed twice", cc.Name)
		}
		seen[cc.Name] = true
		if _, err := cc.kind(); err != nil {
			return err
		}
	}
	return nil
}

func (cc CollectionConfig) kind() (CollectionKind, error) {
	switch cc.Kind {
	case "", "document":
		return DocumentCollection, nil
	case "edge":
		return EdgeCollection, nil
	}
	return 0, rderr.Newf(rderr.InvalidArgument, nil, "docstore: collection %q has unknown kind %q", cc.Name, cc.Kind)
}

// WriteOptions returns the write defaults the config describes.
func (wc WriteConfig) WriteOptions() *WriteOptions {
	o := DefaultWriteOptions()
	set := func(dst *bool, src *bool, invert bool) {
		if src != nil {
			*dst = *src != invert
		}
	}
	set(&o.DropNulls, wc.KeepNull, true)
	set(&o.ReplaceObjects, wc.MergeObjects, true)
	set(&o.WaitForDurable, wc.WaitForDurable, false)
	set(&o.IgnoreErrors, wc.IgnoreErrors, false)
	return o
}

// OpenStoreFromConfig opens the Store at cfg.URL through mux, creates the
// configured collections, and installs the configured defaults.
func OpenStoreFromConfig(ctx context.Context, mux *URLMux, cfg *Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s, err := mux.OpenStore(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	s.writeDefaults = *cfg.Write.WriteOptions()
	s.batchSize = cfg.BatchSize
	for _, cc := range cfg.Collections {
		kind, _ := cc.kind()
		if _, err := s.CreateCollection(ctx, cc.Name, kind); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}
