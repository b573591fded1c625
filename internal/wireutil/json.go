// Package wireutil holds the one jsoniter configuration shared by every
// package that marshals wire or log JSON, matching the teacher's
// utils.JSON convention instead of each package rolling its own encoder.
package wireutil

import jsoniter "github.com/json-iterator/go"

var JSON = jsoniter.Config{EscapeHTML: false, SortMapKeys: true, ValidateJsonRawMessage: true}.Froze()
