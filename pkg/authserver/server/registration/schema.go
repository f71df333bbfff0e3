// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registration

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
)

//go:embed schema.json
var metadataSchemaJSON string

var metadataSchema = mustCompileSchema(metadataSchemaJSON)

func mustCompileSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded client metadata schema: %v", err))
	}
	return schema
}

// ParseMetadata checks raw against the client metadata schema and decodes it.
// Top-level string members that are not standard metadata are collected as
// custom attributes.
func ParseMetadata(raw []byte) (*Metadata, error) {
	result, err := metadataSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, oautherr.ErrInvalidClientMetadata.WithHint("The request body is not valid JSON.")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, oautherr.ErrInvalidClientMetadata.WithHint(strings.Join(msgs, "; "))
	}

	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, oautherr.ErrInvalidClientMetadata.WithHint(err.Error())
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, oautherr.ErrInvalidClientMetadata.WithHint(err.Error())
	}
	for name, value := range members {
		if knownFields[name] {
			continue
		}
		var s string
		if json.Unmarshal(value, &s) != nil {
			continue
		}
		if md.CustomAttributes == nil {
			md.CustomAttributes = make(map[string]string)
		}
		md.CustomAttributes[name] = s
	}
	return &md, nil
}
