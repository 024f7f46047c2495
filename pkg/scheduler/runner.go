package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/termin/pkg/ambient"
	"github.com/rhuss/termin/pkg/linkedin"
	"github.com/rhuss/termin/pkg/observability"
)

// RunOnce publishes all posts that are due, using the given client.
// Storage is resolved through the ambient accessor, so the caller must
// carry a handle cache on the context. A failure to publish one post
// marks it failed and continues with the rest.
func RunOnce(ctx context.Context, client *linkedin.Client) error {
	db, err := ambient.CurrentStorage(ctx)
	if err != nil {
		return fmt.Errorf("resolving storage: %w", err)
	}

	due, err := db.Due(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("querying due posts: %w", err)
	}

	for _, post := range due {
		urn, err := client.CreatePost(ctx, post.Body)
		if err != nil {
			observability.PostsPublishedTotal.WithLabelValues("failed").Inc()
			slog.Error("publishing scheduled post failed", "id", post.ID, "error", err)
			if markErr := db.MarkFailed(ctx, post.ID, err.Error()); markErr != nil {
				slog.Error("marking post failed", "id", post.ID, "error", markErr)
			}
			continue
		}
		observability.PostsPublishedTotal.WithLabelValues("published").Inc()
		slog.Info("published scheduled post", "id", post.ID, "urn", urn)
		if err := db.MarkPublished(ctx, post.ID, urn); err != nil {
			slog.Error("marking post published", "id", post.ID, "error", err)
		}
	}
	return nil
}
