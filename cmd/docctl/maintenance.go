package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tgo/docqa/internal/model"
	"github.com/tgo/docqa/internal/queue"
	"github.com/tgo/docqa/internal/storage"
)

type documentLister interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Document, error)
	FindByStatuses(ctx context.Context, statuses ...model.DocumentStatus) ([]model.Document, error)
}

type documentDeleter interface {
	FindByStatuses(ctx context.Context, statuses ...model.DocumentStatus) ([]model.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// reprocessEmbeddings queues embedding jobs. A non-nil id selects one
// document, all selects every settled document, otherwise only failed ones.
func reprocessEmbeddings(ctx context.Context, docs documentLister, q queue.Queue, id uuid.UUID, all bool) (int, error) {
	var targets []model.Document
	switch {
	case id != uuid.Nil:
		doc, err := docs.FindByID(ctx, id)
		if err != nil {
			return 0, err
		}
		targets = []model.Document{*doc}
	case all:
		found, err := docs.FindByStatuses(ctx, model.DocumentStatusReady, model.DocumentStatusFailed)
		if err != nil {
			return 0, err
		}
		targets = found
	default:
		found, err := docs.FindByStatuses(ctx, model.DocumentStatusFailed)
		if err != nil {
			return 0, err
		}
		targets = found
	}

	for i, doc := range targets {
		if err := q.Enqueue(ctx, queue.Job{DocumentID: doc.ID, From: queue.StageEmbed}); err != nil {
			return i, fmt.Errorf("enqueue %s: %w", doc.ID, err)
		}
	}
	return len(targets), nil
}

type purgeResult struct {
	Documents int
	Files     int
	Failures  []string
}

// purgeDocuments deletes every document record and its stored file. A failure
// on one document is recorded and the purge moves on.
func purgeDocuments(ctx context.Context, docs documentDeleter, store storage.Store) (purgeResult, error) {
	var res purgeResult
	found, err := docs.FindByStatuses(ctx)
	if err != nil {
		return res, err
	}

	for _, doc := range found {
		if err := docs.Delete(ctx, doc.ID); err != nil && !errors.Is(err, model.ErrDocumentNotFound) {
			res.Failures = append(res.Failures, fmt.Sprintf("%s: %v", doc.ID, err))
			continue
		}
		res.Documents++

		if doc.StorageKey == "" {
			continue
		}
		if err := store.Delete(ctx, doc.StorageKey); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				res.Failures = append(res.Failures, fmt.Sprintf("%s: file %s: %v", doc.ID, doc.StorageKey, err))
			}
			continue
		}
		res.Files++
	}
	return res, nil
}
