package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	gmailv1 "google.golang.org/api/gmail/v1"

	"chatpick/internal/logging"
	"chatpick/internal/model"
	"chatpick/internal/util"
)

const defaultLimit = 50

// LocalPeers looks up peers already synced to the local store.
type LocalPeers interface {
	GetPeersByIDs(ctx context.Context, ids []string) ([]model.Peer, error)
}

type DirectoryOptions struct {
	// RequestsPerSecond throttles every API call a search makes.
	RequestsPerSecond float64
	// Workers bounds concurrent metadata fetches.
	Workers int
	Logger  *slog.Logger
}

// Directory searches the mailbox through the Gmail API. It implements both
// search.PeerSearcher and search.TopicSearcher.
type Directory struct {
	svc     *gmailv1.Service
	local   LocalPeers
	limiter *rate.Limiter
	workers int
	log     *slog.Logger
}

func NewDirectory(svc *gmailv1.Service, local LocalPeers, opts DirectoryOptions) *Directory {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	burst := int(opts.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Directory{
		svc:     svc,
		local:   local,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
		workers: opts.Workers,
		log:     opts.Logger.With("component", "directory"),
	}
}

// SearchPeers finds senders matching query. Senders already in the local
// store come back in MyResults with their local counts.
func (d *Directory) SearchPeers(ctx context.Context, query string, limit int) (model.Found, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return model.Found{}, err
	}
	// Senders repeat, so over-fetch messages to reach limit distinct peers.
	resp, err := d.svc.Users.Messages.List(user).
		Q(peerQuery(query)).
		MaxResults(int64(min(limit*3, 500))).
		Context(ctx).
		Do()
	if err != nil {
		return model.Found{}, fmt.Errorf("list messages: %w", err)
	}

	ids := make([]string, len(resp.Messages))
	for i, m := range resp.Messages {
		ids[i] = m.Id
	}
	refs, err := d.fetchMessages(ctx, ids)
	if err != nil {
		return model.Found{}, err
	}

	peers := peersFromRefs(refs, limit)
	d.log.Debug("people search", "query", query, "messages", len(refs), "peers", len(peers))
	return d.splitKnown(ctx, peers), nil
}

// splitKnown moves peers the store knows into MyResults. A failing lookup
// only costs the split.
func (d *Directory) splitKnown(ctx context.Context, peers []model.Peer) model.Found {
	if d.local == nil || len(peers) == 0 {
		return model.Found{Results: peers}
	}
	ids := make([]string, len(peers))
	for i, p := range peers {
		ids[i] = p.ID
	}
	known, err := d.local.GetPeersByIDs(ctx, ids)
	if err != nil {
		d.log.Warn("local peer lookup failed", "error", err)
		return model.Found{Results: peers}
	}
	byID := make(map[string]model.Peer, len(known))
	for _, p := range known {
		byID[p.ID] = p
	}

	var found model.Found
	for _, p := range peers {
		if k, ok := byID[p.ID]; ok {
			found.MyResults = append(found.MyResults, k)
		} else {
			found.Results = append(found.Results, p)
		}
	}
	return found
}

// SearchTopics returns one page of threads in forum, newest first, strictly
// after cursor.
func (d *Directory) SearchTopics(ctx context.Context, forum, query string, cursor model.TopicCursor, limit int) ([]model.Topic, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	call := d.svc.Users.Threads.List(user).
		LabelIds(forum).
		MaxResults(int64(limit))
	if q := topicQuery(query, cursor); q != "" {
		call = call.Q(q)
	}

	var out []model.Topic
	// before: matches a thread when any of its messages is older, so threads
	// already shown can fill whole pages. Page until the limit fills or the
	// listing ends; ctx bounds the walk.
	for len(out) < limit {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("list threads: %w", err)
		}

		ids := make([]string, len(resp.Threads))
		for i, t := range resp.Threads {
			ids[i] = t.Id
		}
		topics, err := d.fetchTopics(ctx, forum, ids)
		if err != nil {
			return nil, err
		}
		for _, t := range topics {
			if cursor.Admits(t) {
				out = append(out, t)
			}
		}
		if resp.NextPageToken == "" {
			break
		}
		call = call.PageToken(resp.NextPageToken)
	}

	sort.SliceStable(out, func(i, j int) bool { return model.TopicNewer(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	d.log.Debug("topic search", "forum", forum, "query", query, "topics", len(out))
	return out, nil
}

func (d *Directory) fetchMessages(ctx context.Context, ids []string) ([]model.MessageRef, error) {
	refs := make([]model.MessageRef, len(ids))
	ok := make([]bool, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
			msg, err := d.svc.Users.Messages.Get(user, id).
				Format("metadata").
				MetadataHeaders(metadataHeaders...).
				Context(ctx).
				Do()
			if err != nil {
				return fmt.Errorf("get message %s: %w", id, err)
			}
			refs[i], ok[i] = refFromMessage(msg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := refs[:0]
	for i, r := range refs {
		if ok[i] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d *Directory) fetchTopics(ctx context.Context, forum string, ids []string) ([]model.Topic, error) {
	var (
		mu     sync.Mutex
		topics []model.Topic
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for _, id := range ids {
		g.Go(func() error {
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
			th, err := d.svc.Users.Threads.Get(user, id).
				Format("metadata").
				MetadataHeaders(metadataHeaders...).
				Context(ctx).
				Do()
			if err != nil {
				return fmt.Errorf("get thread %s: %w", id, err)
			}
			if t, ok := topicFromThread(forum, th); ok {
				mu.Lock()
				topics = append(topics, t)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return topics, nil
}

// topicFromThread builds a topic from the newest message of a thread.
func topicFromThread(forum string, th *gmailv1.Thread) (model.Topic, bool) {
	if th == nil || len(th.Messages) == 0 {
		return model.Topic{}, false
	}
	t := model.Topic{ID: th.Id, Forum: forum, MessageCount: len(th.Messages)}
	var last *gmailv1.Message
	for _, m := range th.Messages {
		if contains(m.LabelIds, labelUnread) {
			t.Unread++
		}
		if last == nil || m.InternalDate > last.InternalDate ||
			(m.InternalDate == last.InternalDate && m.Id > last.Id) {
			last = m
		}
	}

	var subject, date string
	if last.Payload != nil {
		for _, h := range last.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "subject":
				subject = h.Value
			case "date":
				date = h.Value
			}
		}
	}
	t.Title = util.TopicTitle(subject)
	t.Preview = CleanSnippet(last.Snippet)
	t.LastMessageID = last.Id
	t.LastDate = messageDate(last.InternalDate, date)
	return t, true
}

// peersFromRefs dedupes senders, newest message first, keeping at most limit.
func peersFromRefs(refs []model.MessageRef, limit int) []model.Peer {
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Date.After(refs[j].Date) })
	index := make(map[string]int)
	var peers []model.Peer
	for _, r := range refs {
		if i, ok := index[r.From]; ok {
			peers[i].MessageCount++
			if r.Unread {
				peers[i].Unread++
			}
			continue
		}
		if limit > 0 && len(peers) == limit {
			continue
		}
		p := model.Peer{
			ID:           r.From,
			Kind:         util.SenderKind(r.From),
			Name:         r.FromName,
			Email:        r.From,
			LastActive:   r.Date,
			MessageCount: 1,
		}
		if r.Unread {
			p.Unread = 1
		}
		index[r.From] = len(peers)
		peers = append(peers, p)
	}
	return peers
}

// peerQuery matches the query against sender names and addresses.
func peerQuery(q string) string {
	return "from:(" + sanitizeQuery(q) + ")"
}

// topicQuery adds a date bound for the cursor. before: is exclusive, so the
// bound sits one second past the cursor and Admits drops what was already seen.
func topicQuery(q string, cursor model.TopicCursor) string {
	var parts []string
	if s := sanitizeQuery(q); s != "" {
		parts = append(parts, s)
	}
	if !cursor.IsZero() {
		parts = append(parts, "before:"+strconv.FormatInt(cursor.OffsetDate+1, 10))
	}
	return strings.Join(parts, " ")
}

// sanitizeQuery drops characters that would change the meaning of the Gmail
// search expression around the user's text.
func sanitizeQuery(q string) string {
	q = strings.Map(func(r rune) rune {
		switch r {
		case '(', ')', '{', '}', '"':
			return ' '
		}
		return r
	}, q)
	return strings.Join(strings.Fields(q), " ")
}

func contains[T comparable](arr []T, v T) bool {
	for _, x := range arr {
		if x == v {
			return true
		}
	}
	return false
}
