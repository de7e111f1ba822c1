// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"fmt"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Decode drains a query result into a WideTable.
//
// Column kinds come from each table's #datatype annotation, so the set of
// quantity columns is whatever the result carried. Tables with different
// columns (one per measurement after a pivot) are merged row-wise; cells a
// table does not have are nil.
func Decode(result *api.QueryTableResult) (*datatypes.WideTable, error) {
	table := datatypes.NewWideTable()
	for result.Next() {
		if result.TableChanged() {
			for _, col := range result.TableMetadata().Columns() {
				table.DeclareColumn(col.Name(), datatypes.KindFromFluxType(col.DataType()))
			}
		}
		table.AppendRow(result.Record().Values())
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return table, nil
}
