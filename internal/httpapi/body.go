// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/accountd/accountd/internal/account"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// CodeInvalidBody is reported when a request body is not a JSON object.
const CodeInvalidBody = "INVALID_BODY"

// field names a string member of a request body and the code reported when
// it has another JSON type.
type field struct {
	name     string
	typeCode string
}

var (
	fieldName     = field{name: "name", typeCode: account.ViolationInvalidNameType}
	fieldEmail    = field{name: "email", typeCode: account.ViolationInvalidEmailType}
	fieldPassword = field{name: "password", typeCode: account.ViolationInvalidPasswordType}
)

// readFields decodes a JSON object body and returns the requested string
// fields. Absent and null fields read as "". An empty body is an empty
// object. Mistyped fields fail with a validation error carrying the type
// code of each such field.
func readFields(w http.ResponseWriter, r *http.Request, op string, fields ...field) (map[string]string, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, invalidBody(op, err)
	}

	members := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &members); err != nil {
			return nil, invalidBody(op, err)
		}
	}

	out := make(map[string]string, len(fields))
	var typeCodes []string
	for _, f := range fields {
		value, ok := members[f.name]
		if !ok || string(bytes.TrimSpace(value)) == "null" {
			out[f.name] = ""
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			typeCodes = append(typeCodes, f.typeCode)
			continue
		}
		out[f.name] = s
	}

	// Type violations are reported alone. Content checks and the duplicate
	// email lookup only run on well-typed bodies.
	if len(typeCodes) > 0 {
		return nil, &account.Error{Kind: account.KindValidationFailure, Op: op, Violations: typeCodes}
	}
	return out, nil
}

func invalidBody(op string, cause error) error {
	return &account.Error{
		Kind:       account.KindValidationFailure,
		Op:         op,
		Violations: []string{CodeInvalidBody},
		Err:        cause,
	}
}
