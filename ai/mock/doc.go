// Package mock provides test double implementations of AI service interfaces.
//
// The mocks let tests run without external AI services and with fully
// deterministic behavior.
//
// # Usage in Tests
//
//	provider := mock.NewMockProvider()
//	vector, err := provider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	completer := mock.NewMockCompleter()
//	completer.CompleteFunc = func(ctx context.Context, msgs []core.Message, opts ai.CompleteOptions) (string, error) {
//	    return "fixed reply", nil
//	}
//
//	// Check call counts
//	count := completer.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: returns unit vectors derived from an FNV hash of the text
//   - MockCompleter: echoes the content of the last message
//   - MockProvider: aggregates one embedder with separate chat and context completers
package mock
