package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestProjectConfigTemplate_IsValidYAML(t *testing.T) {
	var doc map[string]any
	assert.NoError(t, yaml.Unmarshal([]byte(ProjectConfigTemplate), &doc))
	for _, section := range []string{"index", "search", "embeddings", "state", "server", "watch"} {
		assert.Contains(t, doc, section)
	}
}
