package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"chatpick/internal/logging"
	"chatpick/internal/model"
)

// MessageStore is the persistence the sync routines write to.
type MessageStore interface {
	UpsertMessages(ctx context.Context, msgs []model.MessageRef) error
	DeleteMessages(ctx context.Context, ids []string) error
	CountMessages(ctx context.Context) (int, error)
	GetLastHistoryID(ctx context.Context) (string, error)
	SetLastHistoryID(ctx context.Context, historyID string) error
	UpsertForums(ctx context.Context, forums []model.Forum) error
}

type SyncOptions struct {
	// Forums are the label IDs kept locally.
	Forums []string
	// MaxMessages caps a full scan per forum.
	MaxMessages int
	// Full forces a full scan even when a history ID is stored.
	Full     bool
	Progress func(model.SyncProgress)
	Logger   *slog.Logger
}

func (o SyncOptions) progress(p model.SyncProgress) {
	if o.Progress != nil {
		o.Progress(p)
	}
}

func (o SyncOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return logging.Discard()
	}
	return o.Logger
}

// Sync brings the store up to date: label names first, then an incremental
// history sync, or a full scan when there is no usable history ID.
func Sync(ctx context.Context, svc *gmailv1.Service, store MessageStore, opts SyncOptions) error {
	if store == nil {
		return errors.New("message store is required")
	}
	if len(opts.Forums) == 0 {
		return errors.New("no forums to sync")
	}
	log := opts.logger()

	if err := SyncForums(ctx, svc, store); err != nil {
		return err
	}

	hid, err := store.GetLastHistoryID(ctx)
	if err != nil {
		return fmt.Errorf("read history id: %w", err)
	}
	if opts.Full || hid == "" {
		return FullScan(ctx, svc, store, opts)
	}

	err = SyncSinceHistory(ctx, svc, store, hid, opts)
	if isNotFound(err) {
		// History IDs expire after about a week.
		log.Info("history id expired, running full scan", "history_id", hid)
		return FullScan(ctx, svc, store, opts)
	}
	return err
}

// SyncForums stores display names for every label in the mailbox.
func SyncForums(ctx context.Context, svc *gmailv1.Service, store MessageStore) error {
	resp, err := svc.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	forums := make([]model.Forum, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		forums = append(forums, model.Forum{ID: l.Id, Name: l.Name})
	}
	if err := store.UpsertForums(ctx, forums); err != nil {
		return fmt.Errorf("store labels: %w", err)
	}
	return nil
}

// FullScan lists up to MaxMessages messages of each forum, fetches their
// metadata and stores it. It records the mailbox history ID taken before the
// scan so the next incremental sync misses nothing.
func FullScan(ctx context.Context, svc *gmailv1.Service, store MessageStore, opts SyncOptions) error {
	log := opts.logger()
	opts.progress(model.SyncProgress{Phase: "fullscan-start"})

	hid, err := currentHistoryID(ctx, svc)
	if err != nil {
		return fmt.Errorf("get current historyId: %w", err)
	}

	ids, err := listForumMessages(ctx, svc, opts.Forums, opts.MaxMessages)
	if err != nil {
		return err
	}
	total := len(ids)
	opts.progress(model.SyncProgress{Phase: "fullscan-start", Total: total})

	type job struct{ id string }
	type result struct {
		ref model.MessageRef
		ok  bool
		err error
	}
	jobs := make(chan job, 1000)
	results := make(chan result, 1000)

	const workerCount = 16
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}
				msg, err := getMetadata(ctx, svc, j.id)
				if err != nil {
					results <- result{err: err}
					continue
				}
				ref, ok := refFromMessage(msg)
				results <- result{ref: ref, ok: ok}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			select {
			case <-ctx.Done():
				return
			case jobs <- job{id: id}:
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	var collectErr error
	const batch = 500
	buf := make([]model.MessageRef, 0, batch)
	done := 0
	flush := func() {
		if len(buf) == 0 {
			return
		}
		if err := store.UpsertMessages(ctx, buf); err != nil && collectErr == nil {
			collectErr = err
		}
		buf = buf[:0]
		opts.progress(model.SyncProgress{Phase: "fullscan", Done: done, Total: total})
	}

	for r := range results {
		if r.err != nil {
			// Keep going; one bad message should not lose the rest.
			if collectErr == nil {
				collectErr = r.err
			}
			continue
		}
		done++
		if !r.ok {
			continue
		}
		buf = append(buf, r.ref)
		if len(buf) >= batch {
			flush()
		} else if done%50 == 0 {
			opts.progress(model.SyncProgress{Phase: "fullscan", Done: done, Total: total})
		}
	}
	flush()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	// Partial scans still record the history ID; the next full sync repairs gaps.
	if done > 0 {
		if err := store.SetLastHistoryID(ctx, hid); err != nil && collectErr == nil {
			collectErr = err
		}
	}

	log.Info("full scan finished", "messages", done, "forums", len(opts.Forums))
	opts.progress(model.SyncProgress{Phase: "fullscan-done", Done: done, Total: total})
	return collectErr
}

func listForumMessages(ctx context.Context, svc *gmailv1.Service, forums []string, max int) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, forum := range forums {
		n := 0
		call := svc.Users.Messages.List(user).LabelIds(forum).MaxResults(500)
		err := call.Pages(ctx, func(resp *gmailv1.ListMessagesResponse) error {
			for _, m := range resp.Messages {
				if max > 0 && n >= max {
					return errStopPaging
				}
				n++
				if _, dup := seen[m.Id]; dup {
					continue
				}
				seen[m.Id] = struct{}{}
				ids = append(ids, m.Id)
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopPaging) {
			return nil, fmt.Errorf("list messages in %s: %w", forum, err)
		}
	}
	return ids, nil
}

var errStopPaging = errors.New("stop paging")

// SyncSinceHistory applies mailbox changes since lastHistoryID. Any message
// whose labels changed is fetched again; messages that left every synced
// forum, or the mailbox, are deleted.
func SyncSinceHistory(ctx context.Context, svc *gmailv1.Service, store MessageStore, lastHistoryID string, opts SyncOptions) error {
	if strings.TrimSpace(lastHistoryID) == "" {
		return errors.New("lastHistoryID is required")
	}
	startID, err := strconv.ParseUint(lastHistoryID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid lastHistoryID %q: %w", lastHistoryID, err)
	}

	refetch := make(map[string]struct{})
	gone := make(map[string]struct{})
	var newest uint64

	call := svc.Users.History.List(user).StartHistoryId(startID).MaxResults(500)
	err = call.Pages(ctx, func(resp *gmailv1.ListHistoryResponse) error {
		if resp.HistoryId > newest {
			newest = resp.HistoryId
		}
		for _, h := range resp.History {
			for _, ma := range h.MessagesAdded {
				if ma.Message != nil && tracked(ma.Message.LabelIds, opts.Forums) {
					refetch[ma.Message.Id] = struct{}{}
					delete(gone, ma.Message.Id)
				}
			}
			for _, md := range h.MessagesDeleted {
				if md.Message != nil {
					gone[md.Message.Id] = struct{}{}
					delete(refetch, md.Message.Id)
				}
			}
			for _, la := range h.LabelsAdded {
				if la.Message != nil {
					refetch[la.Message.Id] = struct{}{}
				}
			}
			for _, lr := range h.LabelsRemoved {
				if lr.Message != nil {
					refetch[lr.Message.Id] = struct{}{}
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("history list: %w", err)
	}

	total := len(refetch) + len(gone)
	opts.progress(model.SyncProgress{Phase: "history-start", Total: total})

	refs, missing, err := fetchMetadataBatch(ctx, svc, keys(refetch))
	if err != nil {
		return err
	}
	for _, id := range missing {
		gone[id] = struct{}{}
	}
	var keep []model.MessageRef
	for _, r := range refs {
		if tracked(r.Labels, opts.Forums) {
			keep = append(keep, r)
		} else {
			gone[r.ID] = struct{}{}
		}
	}
	if err := store.UpsertMessages(ctx, keep); err != nil {
		return err
	}
	opts.progress(model.SyncProgress{Phase: "history", Total: total, Done: len(refs)})

	if err := store.DeleteMessages(ctx, keys(gone)); err != nil {
		return err
	}

	newestID := strconv.FormatUint(newest, 10)
	if newest == 0 {
		if newestID, err = currentHistoryID(ctx, svc); err != nil {
			return fmt.Errorf("get current historyId: %w", err)
		}
	}
	if err := store.SetLastHistoryID(ctx, newestID); err != nil {
		return err
	}

	opts.logger().Info("history sync finished", "updated", len(keep), "deleted", len(gone))
	opts.progress(model.SyncProgress{Phase: "history-done", Total: total, Done: total})
	return nil
}

// fetchMetadataBatch fetches ids concurrently. IDs the API no longer knows
// are returned in missing instead of failing the batch.
func fetchMetadataBatch(ctx context.Context, svc *gmailv1.Service, ids []string) (refs []model.MessageRef, missing []string, err error) {
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range ids {
		g.Go(func() error {
			msg, err := getMetadata(ctx, svc, id)
			mu.Lock()
			defer mu.Unlock()
			if isNotFound(err) {
				missing = append(missing, id)
				return nil
			}
			if err != nil {
				return err
			}
			if ref, ok := refFromMessage(msg); ok {
				refs = append(refs, ref)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return refs, missing, nil
}

func getMetadata(ctx context.Context, svc *gmailv1.Service, id string) (*gmailv1.Message, error) {
	msg, err := svc.Users.Messages.Get(user, id).
		Format("metadata").
		MetadataHeaders(metadataHeaders...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return msg, nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func tracked(labels, forums []string) bool {
	for _, f := range forums {
		if contains(labels, f) {
			return true
		}
	}
	return false
}

// keys returns the keys of a set in arbitrary order.
func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func currentHistoryID(ctx context.Context, svc *gmailv1.Service) (string, error) {
	profile, err := svc.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(profile.HistoryId, 10), nil
}
