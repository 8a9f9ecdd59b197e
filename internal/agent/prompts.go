package agent

import (
	"embed"
	"fmt"
)

// Stage prompts are baked into the binary so the pipeline has no runtime
// filesystem dependency for its instructions.
//
//go:embed prompts
var embeddedPrompts embed.FS

// loadPrompt returns the named stage prompt, e.g. "input_guard".
func loadPrompt(name string) string {
	data, err := embeddedPrompts.ReadFile(fmt.Sprintf("prompts/%s.md", name))
	if err != nil {
		panic(fmt.Sprintf("missing embedded prompt %q: %v", name, err))
	}
	return string(data)
}
