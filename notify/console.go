package notify

import (
	"context"
	"fmt"
	"io"
	"os"

	"staywatch/models"
)

// ConsoleNotifier writes result summaries to a writer, for local runs and
// deployments without SMTP.
type ConsoleNotifier struct {
	Out io.Writer
}

func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{Out: os.Stderr}
}

func (n *ConsoleNotifier) SendNotification(ctx context.Context, search *models.Search, result *models.SearchResult) error {
	_, err := fmt.Fprintf(n.Out, "%s\n%s\n", Subject(search, result), Body(search, result))
	return err
}

func (n *ConsoleNotifier) SendError(ctx context.Context, search *models.Search, runErr error) error {
	_, err := fmt.Fprintf(n.Out, "StayWatch: %s - execution failed: %v\n", search.Name, runErr)
	return err
}
