// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracer_None(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{Exporter: "none"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracer_Unknown(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{Exporter: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
	assert.NotNil(t, shutdown)
}

func TestTracer_StartsSpans(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "test")
	defer span.End()
	assert.NotNil(t, span)
}
