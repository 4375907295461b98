package airdrop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dotside-studios/airdrop-bridge/cpio"
	"github.com/dotside-studios/airdrop-bridge/octal"
	"github.com/dotside-studios/airdrop-bridge/peer"
	"github.com/dotside-studios/airdrop-bridge/plist"
)

var handlerLogger = log.New(os.Stderr, "[airdrop] ", log.LstdFlags)

// Handler implements the three AirDrop HTTP endpoints plus a health
// check (spec §4.7/C7), grounded on the teacher's ServerHandler routing
// idiom.
type Handler struct {
	Registry *Registry

	// UploadRoot is the directory fresh per-upload subdirectories are
	// created under; UploadURLPrefix is the HTTP path the external
	// static file server exposes UploadRoot at.
	UploadRoot      string
	UploadURLPrefix string

	AskTimeout time.Duration
}

// Register wires the routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /Discover", h.Discover)
	mux.HandleFunc("POST /Ask", h.Ask)
	mux.HandleFunc("POST /Upload", h.Upload)
	mux.HandleFunc("GET /healthz", h.HealthCheck)
}

// routePeer implements the shared routing prelude: the Host header's
// first label must name a registered peer. On miss, it writes 404
// without reading the body (spec §4.7's "unknown host is rejected before
// any body parsing").
func (h *Handler) routePeer(w http.ResponseWriter, r *http.Request) (*peer.Channel, bool) {
	host := r.Host
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	label := host
	if i := strings.IndexByte(host, '.'); i >= 0 {
		label = host[:i]
	}

	ch, ok := h.Registry.Lookup(label)
	if !ok {
		h.writeBridgeError(w, NewNotFoundError("routePeer", "host label "+label+" not mapped to a peer"), http.StatusNotFound)
		return nil, false
	}
	return ch, true
}

func (h *Handler) writePlist(w http.ResponseWriter, v any) {
	data, err := plist.Encode(v)
	if err != nil {
		handlerLogger.Printf("encode response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-apple-binary-plist")
	w.Write(data)
}

// writeBridgeError logs err and answers with status. The caller picks
// status to fit err's code; the encode and marshal failures in writePlist
// and Discover write their 500 directly instead of coming through here.
func (h *Handler) writeBridgeError(w http.ResponseWriter, err *BridgeError, status int) {
	handlerLogger.Print(err)
	w.WriteHeader(status)
}

// Discover implements POST /Discover: a coarse sender-record check
// tolerant of an absent record ("Everyone" mode), followed by a plist
// reply naming the receiving peer (spec §4.7).
func (h *Handler) Discover(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.routePeer(w, r)
	if !ok {
		return
	}

	var req DiscoverRequest
	if err := plist.DecodeReader(r.Body, &req); err != nil {
		h.writeBridgeError(w, NewMalformedInputError("Discover", err), http.StatusBadRequest)
		return
	}

	if len(req.SenderRecordData) > 0 {
		if _, err := VerifySenderRecord(req.SenderRecordData); err != nil {
			h.writeBridgeError(w, NewMalformedInputError("Discover", err), http.StatusBadRequest)
			return
		}
	} else {
		handlerLogger.Printf("Discover: no sender record presented for %s, admitting under Everyone mode", ch.ID())
	}

	caps, err := json.Marshal(map[string]int{"Version": 1})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.writePlist(w, DiscoverResponse{
		ReceiverComputerName:      ch.DisplayName(),
		ReceiverModelName:         ch.DisplayName(),
		ReceiverMediaCapabilities: caps,
	})
}

// Ask implements POST /Ask: forward the sender's file manifest to the
// connected peer and relay its accept/decline decision (spec §4.7).
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.routePeer(w, r)
	if !ok {
		return
	}

	var req AskRequest
	if err := plist.DecodeReader(r.Body, &req); err != nil {
		h.writeBridgeError(w, NewMalformedInputError("Ask", err), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.AskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.AskTimeout)
		defer cancel()
	}

	accepted, err := ch.Ask(ctx, toPeerAskRequest(req))
	if err != nil {
		if errors.Is(err, peer.ErrPeerGone) {
			// Close is idempotent; this just guarantees the service
			// record is gone even if the reader goroutine hasn't
			// unregistered yet (spec §7 kind 4).
			ch.Close()
		}
		h.writeBridgeError(w, NewTransportFailureError("Ask", err), http.StatusBadGateway)
		return
	}
	if !accepted {
		h.writeBridgeError(w, NewPolicyViolationError("Ask", "peer declined transfer"), http.StatusNotAcceptable)
		return
	}

	h.writePlist(w, AskResponse{ReceiverComputerName: ch.DisplayName(), ReceiverModelName: ch.DisplayName()})
}

func toPeerAskRequest(req AskRequest) peer.AskRequestPayload {
	files := make([]peer.FileMetadata, len(req.Files))
	for i, f := range req.Files {
		files[i] = peer.FileMetadata{
			Name:                f.Name,
			Type:                f.Type,
			IsDirectory:         f.IsDirectory,
			ConvertMediaFormats: f.ConvertMediaFormats,
			BomPath:             f.BomPath,
		}
	}
	return peer.AskRequestPayload{
		SenderComputerName: req.SenderComputerName,
		SenderModelName:    req.SenderModelName,
		SenderID:           req.SenderID,
		BundleID:           req.BundleID,
		PreviewIcon:        req.PreviewIcon,
		Files:              files,
		SignedSenderRecord: req.SenderRecordData,
	}
}

// Upload implements POST /Upload: extract a gzip-wrapped cpio-odc
// archive into a fresh subdirectory, notify the peer of each file's
// download URL, and clean up once every notification completes (spec
// §4.7).
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.routePeer(w, r)
	if !ok {
		return
	}

	if ct := r.Header.Get("Content-Type"); ct != "application/x-cpio" {
		h.writeBridgeError(w, NewMalformedInputError("Upload", fmt.Errorf("unexpected content-type %q", ct)), http.StatusUnprocessableEntity)
		return
	}

	subdir := filepath.Join(h.UploadRoot, octal.NewID())
	defer h.cleanup(subdir)

	created, err := cpio.ExtractGzipStream(r.Body, subdir)
	if err != nil {
		// Bad magic, bad octal field, truncation: malformed input, not a
		// server fault (spec §7 kind 1).
		h.writeBridgeError(w, NewMalformedInputError("Upload", err), http.StatusUnprocessableEntity)
		return
	}

	for _, path := range created {
		size := fileSize(path)

		rel, relErr := filepath.Rel(h.UploadRoot, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		url := h.UploadURLPrefix + filepath.ToSlash(rel)

		if err := ch.NotifyUploaded(r.Context(), filepath.Base(path), url, size); err != nil {
			if errors.Is(err, peer.ErrPeerGone) {
				ch.Close()
			}
			h.writeBridgeError(w, NewTransportFailureError("Upload", err), http.StatusBadGateway)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func (h *Handler) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		handlerLogger.Printf("cleanup %s: %v", dir, NewCleanupFailureError("Upload", err))
	}
}

// HealthCheck answers GET /healthz with liveness and the connected-peer
// count, grounded on the teacher's handleHealthCheck.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"peers":  h.Registry.Count(),
	})
}
