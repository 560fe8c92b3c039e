package embed

import "context"

// Embedder turns text into a fixed-length float vector. The desk treats
// embedding generation as an external collaborator: text in, vector out.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
