package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/starford/minto/internal/apperr"
	"github.com/starford/minto/internal/merge"
	"github.com/starford/minto/internal/metrics"
	"github.com/starford/minto/internal/models"
)

type beginReq struct {
	nodeID string
	resp   chan beginResp
}

type beginResp struct {
	anchor   models.Node
	snapshot models.Graph
	err      error
}

type mergeReq struct {
	ctx      context.Context
	nodeID   string
	addition models.Graph
	dir      models.Direction
	genErr   error
	resp     chan mergeResp
}

type mergeResp struct {
	graph models.Graph
	err   error
}

type replaceReq struct {
	ctx   context.Context
	graph models.Graph
	resp  chan error
}

// Diagram is the serialization point for one history entry.
type Diagram struct {
	id  string
	hub *Hub

	beginCh    chan beginReq
	mergeCh    chan mergeReq
	replaceCh  chan replaceReq
	snapshotCh chan chan models.Graph

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

func newDiagram(h *Hub, id string, g models.Graph) *Diagram {
	d := &Diagram{
		id:         id,
		hub:        h,
		beginCh:    make(chan beginReq),
		mergeCh:    make(chan mergeReq, 64),
		replaceCh:  make(chan replaceReq),
		snapshotCh: make(chan chan models.Graph),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go d.run(g.Clone())
	return d
}

// ID returns the history id of the diagram.
func (d *Diagram) ID() string {
	return d.id
}

func (d *Diagram) run(graph models.Graph) {
	defer close(d.stopped)

	expanding := make(map[string]struct{})

	for {
		select {
		case <-d.stopCh:
			// Pending merges are never processed once the loop stops.
			metrics.ExpansionsInFlight.Sub(float64(len(expanding)))
			return

		case req := <-d.beginCh:
			anchor, ok := graph.Node(req.nodeID)
			switch {
			case !ok:
				req.resp <- beginResp{err: apperr.New(apperr.ErrUnknownAnchor, req.nodeID,
					"anchor node %q is not part of diagram %q", req.nodeID, d.id)}
			case contains(expanding, req.nodeID):
				req.resp <- beginResp{err: apperr.New(apperr.ErrExpansionInProgress, req.nodeID,
					"node %q is already being expanded", req.nodeID)}
			default:
				expanding[req.nodeID] = struct{}{}
				metrics.ExpansionsInFlight.Inc()
				req.resp <- beginResp{anchor: anchor, snapshot: graph.Clone()}
			}

		case req := <-d.mergeCh:
			delete(expanding, req.nodeID)
			metrics.ExpansionsInFlight.Dec()

			merged, err := d.apply(req, graph)
			metrics.MergeTotal.WithLabelValues(metrics.Result(err)).Inc()
			if err != nil {
				d.hub.notify(Event{Kind: EventFailed, DiagramID: d.id, NodeID: req.nodeID, Err: err})
				req.resp <- mergeResp{err: err}
				continue
			}
			graph = merged
			d.hub.notify(Event{Kind: EventExpanded, DiagramID: d.id, NodeID: req.nodeID, Graph: merged.Clone()})
			req.resp <- mergeResp{graph: merged.Clone()}

		case req := <-d.replaceCh:
			if err := d.hub.store.Update(req.ctx, d.id, req.graph); err != nil {
				req.resp <- err
				continue
			}
			graph = req.graph.Clone()
			req.resp <- nil

		case resp := <-d.snapshotCh:
			resp <- graph.Clone()
		}
	}
}

// apply merges a resolved addition into the latest graph and persists the
// result. The store is written only once layout succeeded.
func (d *Diagram) apply(req mergeReq, graph models.Graph) (models.Graph, error) {
	if req.genErr != nil {
		return models.Graph{}, req.genErr
	}

	started := time.Now()
	merged, err := merge.Expand(graph, req.nodeID, req.addition,
		merge.WithEngine(d.hub.engine),
		merge.WithDirection(req.dir))
	if err != nil {
		return models.Graph{}, err
	}
	metrics.ObserveLayout(string(req.dir), len(merged.Nodes), started)

	if detached := merge.Detached(merged, req.nodeID, len(graph.Nodes)); len(detached) > 0 {
		d.hub.logger.Warn("expansion added nodes not connected to the anchor",
			slog.String("diagram_id", d.id),
			slog.String("anchor", req.nodeID),
			slog.Any("nodes", detached))
	}

	// A finished generation is persisted even if the caller went away.
	if err := d.hub.store.Update(context.WithoutCancel(req.ctx), d.id, merged); err != nil {
		return models.Graph{}, err
	}
	return merged, nil
}

// Expand runs one expansion of nodeID:
//
//  1. the loop marks nodeID as expanding, or rejects the call with
//     apperr.ErrExpansionInProgress (or apperr.ErrUnknownAnchor);
//  2. the generator is called outside the loop with a snapshot;
//  3. the addition is queued and merged against the latest graph;
//  4. the merged graph is persisted and published.
//
// The expanding flag is cleared in every outcome.
func (d *Diagram) Expand(ctx context.Context, nodeID string, dir models.Direction) (models.Graph, error) {
	if dir == "" {
		dir = models.DirectionTB
	}
	if !dir.Valid() {
		return models.Graph{}, apperr.Validation("direction", "unsupported direction %q", dir)
	}

	begin, err := d.begin(nodeID)
	if err != nil {
		return models.Graph{}, err
	}
	d.hub.notify(Event{Kind: EventExpanding, DiagramID: d.id, NodeID: nodeID})

	addition, genErr := d.hub.expander.ExpandNode(ctx, begin.anchor, begin.snapshot)

	resp := make(chan mergeResp, 1)
	req := mergeReq{ctx: ctx, nodeID: nodeID, addition: addition, dir: dir, genErr: genErr, resp: resp}
	select {
	case d.mergeCh <- req:
	case <-d.stopped:
		return models.Graph{}, ErrClosed
	}
	select {
	case r := <-resp:
		return r.graph, r.err
	case <-d.stopped:
		return models.Graph{}, ErrClosed
	}
}

func (d *Diagram) begin(nodeID string) (beginResp, error) {
	if d.closed.Load() {
		return beginResp{}, ErrClosed
	}
	resp := make(chan beginResp, 1)
	select {
	case d.beginCh <- beginReq{nodeID: nodeID, resp: resp}:
	case <-d.stopped:
		return beginResp{}, ErrClosed
	}
	r := <-resp
	return r, r.err
}

func (d *Diagram) replace(ctx context.Context, g models.Graph) error {
	resp := make(chan error, 1)
	select {
	case d.replaceCh <- replaceReq{ctx: ctx, graph: g, resp: resp}:
	case <-d.stopped:
		return ErrClosed
	}
	select {
	case err := <-resp:
		return err
	case <-d.stopped:
		return ErrClosed
	}
}

// Snapshot returns a copy of the current graph.
func (d *Diagram) Snapshot() (models.Graph, error) {
	resp := make(chan models.Graph, 1)
	select {
	case d.snapshotCh <- resp:
	case <-d.stopped:
		return models.Graph{}, ErrClosed
	}
	select {
	case g := <-resp:
		return g, nil
	case <-d.stopped:
		return models.Graph{}, ErrClosed
	}
}

// Close stops the loop. Pending expansions fail with ErrClosed.
func (d *Diagram) Close() {
	if d.closed.CompareAndSwap(false, true) {
		close(d.stopCh)
	}
	<-d.stopped
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
