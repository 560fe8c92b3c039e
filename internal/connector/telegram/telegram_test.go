package telegram

import (
	"github.com/deskd-io/deskd/internal/connector"
)

// Verify Connector implements connector.Connector at compile time.
var _ connector.Connector = (*Connector)(nil)
