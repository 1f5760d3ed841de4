package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
	"github.com/Vorion-Labs/cognigate/pkg/council"
	"github.com/Vorion-Labs/cognigate/pkg/export"
	"github.com/Vorion-Labs/cognigate/pkg/store/anchor"
	"github.com/Vorion-Labs/cognigate/pkg/store/ledger"
	"github.com/Vorion-Labs/cognigate/pkg/verify"
)

// Server exposes the Truth Chain and Council over HTTP.
type Server struct {
	ledger      ledger.Ledger
	verifier    *verify.Service
	engine      *council.Engine
	escalations *council.EscalationManager
	anchors     anchor.Store
	bundles     *export.Builder
	logger      *slog.Logger
}

// NewServer wires the HTTP surface.
func NewServer(l ledger.Ledger, v *verify.Service, e *council.Engine, esc *council.EscalationManager, anchors anchor.Store, bundles *export.Builder, logger *slog.Logger) *Server {
	return &Server{
		ledger:      l,
		verifier:    v,
		engine:      e,
		escalations: esc,
		anchors:     anchors,
		bundles:     bundles,
		logger:      logger.With("component", "api"),
	}
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /records", s.handleAppendRecord)
	mux.HandleFunc("GET /records/{recordID}", s.handleGetRecord)
	mux.HandleFunc("GET /records/{recordID}/bundle", s.handleExportBundle)
	mux.HandleFunc("POST /records/{recordID}/bundle", s.handlePublishBundle)

	mux.HandleFunc("GET /verify/{recordID}", s.handleVerifyRecord)
	mux.HandleFunc("GET /verify/agent/{subjectID}", s.handleVerifySubject)
	mux.HandleFunc("POST /verify/proof", s.handleVerifyProof)

	mux.HandleFunc("POST /council/cases", s.handleOpenCase)
	mux.HandleFunc("GET /council/escalations", s.handleListEscalations)
	mux.HandleFunc("POST /council/escalations/{caseID}/resolve", s.handleResolveEscalation)
	mux.HandleFunc("POST /council/halt", s.handleHalt)
	mux.HandleFunc("POST /council/resume", s.handleResume)

	mux.HandleFunc("GET /anchors", s.handleListAnchors)

	limiter := NewGlobalRateLimiter(50, 100)
	return RequestID(limiter.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAppendRecord commits an externally sourced fact to the chain.
// Decision, escalation and anchor records are engine-owned and cannot be
// appended through this endpoint.
func (s *Server) handleAppendRecord(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := validateSchema(recordRequestSchema, body); err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}

	var cand contracts.Candidate
	if err := json.Unmarshal(body, &cand); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return
	}

	rec, err := s.ledger.Append(r.Context(), cand)
	if err != nil {
		if errors.Is(err, contracts.ErrConflict) {
			WriteConflict(w, "Append lost the sequence race; retry the request")
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.Get(r.Context(), r.PathValue("recordID"))
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			WriteNotFound(w, "No record with that ID")
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleExportBundle returns a portable proof bundle for an anchored record.
func (s *Server) handleExportBundle(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.bundles.Build(r.Context(), r.PathValue("recordID"))
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			WriteNotFound(w, "Record does not exist or is not yet anchored")
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// handlePublishBundle writes the bundle to the configured bundle store and
// returns its content-addressed reference alongside the bundle itself.
func (s *Server) handlePublishBundle(w http.ResponseWriter, r *http.Request) {
	bundle, ref, err := s.bundles.Publish(r.Context(), r.PathValue("recordID"))
	if err != nil {
		switch {
		case errors.Is(err, export.ErrNoStore):
			WriteServiceUnavailable(w, "No bundle store is configured")
		case errors.Is(err, contracts.ErrNotFound):
			WriteNotFound(w, "Record does not exist or is not yet anchored")
		default:
			WriteInternal(w, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"storage_ref": ref,
		"bundle":      bundle,
	})
}

func (s *Server) handleVerifyRecord(w http.ResponseWriter, r *http.Request) {
	report, err := s.verifier.VerifyRecord(r.Context(), r.PathValue("recordID"))
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			WriteNotFound(w, "No record with that ID")
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleVerifySubject(w http.ResponseWriter, r *http.Request) {
	report, err := s.verifier.VerifySubject(r.Context(), r.PathValue("subjectID"))
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			WriteNotFound(w, "No records for that subject")
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// proofRequest is the inbound body of POST /verify/proof. Third parties hold
// the sibling list under "proof"; reports produced here emit it as "path".
type proofRequest struct {
	LeafHash     string   `json:"leaf_hash"`
	Root         string   `json:"root"`
	Path         []string `json:"path"`
	Proof        []string `json:"proof"`
	Index        int      `json:"index"`
	WitnessTxRef string   `json:"witness_tx_ref"`
}

// handleVerifyProof checks a Merkle inclusion proof against a witnessed root.
// It touches no storage: the caller supplies everything.
func (s *Server) handleVerifyProof(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := validateSchema(proofRequestSchema, body); err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}

	var req proofRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return
	}
	siblings := req.Path
	if siblings == nil {
		siblings = req.Proof
	}
	verified := verify.CheckProof(verify.Proof{
		LeafHash: req.LeafHash,
		Root:     req.Root,
		Path:     siblings,
		Index:    req.Index,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"verified": verified})
}

func (s *Server) handleOpenCase(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := validateSchema(caseRequestSchema, body); err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}

	var req contracts.CaseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return
	}

	result, err := s.engine.Deliberate(r.Context(), req)
	if err != nil {
		if errors.Is(err, contracts.ErrDeliberationHalted) {
			WriteServiceUnavailable(w, "Deliberation is halted by operator kill-switch")
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListEscalations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.escalations.Pending())
}

type resolveRequest struct {
	Verdict   contracts.CaseVerdict `json:"verdict"`
	DecidedBy string                `json:"decided_by"`
	Rationale string                `json:"rationale"`
}

func (s *Server) handleResolveEscalation(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	rec, err := s.escalations.Resolve(r.Context(), r.PathValue("caseID"), req.Verdict, req.DecidedBy, req.Rationale)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			WriteNotFound(w, "No pending escalation for that case")
			return
		}
		WriteBadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	s.engine.Halt()
	s.logger.Warn("deliberation halted by operator")
	writeJSON(w, http.StatusOK, map[string]string{"status": "halted"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.engine.Resume()
	s.logger.Info("deliberation resumed by operator")
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) handleListAnchors(w http.ResponseWriter, r *http.Request) {
	anchors, err := s.anchors.List(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, anchors)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
