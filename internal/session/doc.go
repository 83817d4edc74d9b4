// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs conversation turns: it appends the user's message,
// drives the generation client, writes streamed text back into the store,
// handles cancellation and regeneration, and persists the result.
//
// # Turn lifecycle
//
//	Idle -> AwaitingResponse -> Streaming -> Completing -> Idle
//	                 \              \
//	                  +--------------+--> Cancelled (conversation back to Idle)
//
// Each conversation has at most one turn in flight; different
// conversations may generate in parallel. Cancelling is advisory: the
// request keeps running in the background, and its output is discarded.
//
// # Key Types
//
//   - Controller: owns turn bookkeeping for a store
//   - Turn: handle for one in-flight exchange
//   - Persister, StorePersister: how state reaches a storage backend
//   - Notifier, Event: progress and failure notifications for the UI
//
// # Usage
//
//	ctrl := session.New(st, client,
//	    session.WithPersister(&session.StorePersister{Store: st, Blobs: blobs}),
//	    session.WithNotifier(session.NotifierFunc(render)),
//	)
//	turn, err := ctrl.Send(ctx, "What is a goroutine?")
//	result, err := turn.Wait(ctx)
package session
