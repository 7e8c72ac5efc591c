package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress_OutputFormat(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: updating progress
	r.UpdateProgress(ProgressEvent{Stage: StageEmbedding, Current: 50, Total: 100, Message: "embedding"})

	// Then: output is correctly formatted
	assert.Equal(t, "[EMBED] 50/100 - embedding\n", buf.String())
}

func TestPlainRenderer_UpdateProgress_NoANSICodes(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	for _, stage := range []Stage{StageLoading, StageLexical, StageEmbedding, StageWriting, StageEvaluating, StageComplete} {
		r.UpdateProgress(ProgressEvent{Stage: stage, Current: 1, Total: 2, Message: "working"})
	}

	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPlainRenderer_UpdateProgress_ZeroTotalWithoutMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{Stage: StageLoading})

	assert.Empty(t, buf.String())
}

func TestPlainRenderer_AddError(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.AddError(ErrorEvent{Err: errors.New("no qrels"), IsWarn: true})
	r.AddError(ErrorEvent{Err: errors.New("disk full")})

	assert.Equal(t, "WARN: no qrels\nERROR: disk full\n", buf.String())
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a finished build with evaluation
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(context.Background()))

	// When: completing
	r.Complete(CompletionStats{
		Docs:     40,
		Duration: 2 * time.Second,
		Warnings: 1,
		Stages:   StageTimings{Load: time.Second, Embed: 2 * time.Second},
		Embedder: EmbedderInfo{Model: "static", Dimensions: 256},
		Metrics:  map[string]float64{"nDCG@10": 0.5, "MRR@10": 0.25},
	})

	// Then: summary, breakdown, model and sorted metrics are printed
	out := buf.String()
	assert.Contains(t, out, "Complete: 40 documents indexed in 2s (1 warnings)")
	assert.Contains(t, out, "Embed:   2s (40 docs @ 20.0/sec)")
	assert.Contains(t, out, "Model: static (256 dims)")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("MRR@10: 0.2500")), bytes.Index(buf.Bytes(), []byte("nDCG@10: 0.5000")))
	require.NoError(t, r.Stop())
}
