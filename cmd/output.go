package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// printResult writes out as indented JSON, or as key/value rows with nested objects flattened to dotted keys.
func printResult(w io.Writer, format string, out interface{}) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		var row map[string]interface{}
		if err := json.Unmarshal(raw, &row); err != nil {
			return err
		}
		rows = []map[string]interface{}{row}
	}
	for i, row := range rows {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		flat := make(map[string]interface{}, len(row))
		flatten("", row, flat)
		keys := make([]string, 0, len(flat))
		for key := range flat {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(tw, "%s\t%v\n", key, flat[key])
		}
	}
	return nil
}

func flatten(prefix string, row map[string]interface{}, into map[string]interface{}) {
	for key, value := range row {
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			flatten(key, nested, into)
			continue
		}
		into[key] = value
	}
}
