package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"caseflow/internal/casedoc"
	"caseflow/internal/config"
	"caseflow/internal/models"
	"caseflow/internal/ontology"
	"caseflow/internal/pipeline"
	"caseflow/internal/queue"
	"caseflow/internal/review"
	"caseflow/internal/storage"
	"caseflow/internal/workflows"

	"github.com/google/uuid"
	tclient "go.temporal.io/sdk/client"
)

type Server struct {
	cfg           config.Config
	db            *storage.DB
	caseRepo      *storage.CaseRepo
	runRepo       *storage.RunRepo
	sessionRepo   *storage.SessionRepo
	committedRepo *storage.CommittedRepo
	provRepo      *storage.ProvenanceRepo
	ontologyRepo  *storage.OntologyRepo
	machine       *pipeline.StateMachine
	queueMgr      *queue.Manager
	reviewCtl     *review.Controller
	starter       queue.WorkflowStarter
	temporal      tclient.Client
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}

	runRepo := storage.NewRunRepo(db)
	machine := pipeline.NewStateMachine(runRepo)
	starter := queue.NewTemporalStarter(tc, cfg)
	queueMgr := queue.NewManager(
		storage.NewQueueRepo(db), machine, starter,
		cfg.MaxConcurrentRuns,
		time.Duration(cfg.DispatchIntervalMS)*time.Millisecond,
	)

	ontologyRepo := storage.NewOntologyRepo(db)
	var resolver ontology.Resolver
	if cfg.OntologyBaseURL != "" {
		resolver = ontology.NewHTTPResolver(cfg.OntologyBaseURL, cfg.OntologyNamespace)
	} else {
		resolver = ontology.NewPostgresResolver(ontologyRepo, cfg.OntologyNamespace)
	}

	s := &Server{
		cfg:           cfg,
		db:            db,
		caseRepo:      storage.NewCaseRepo(db),
		runRepo:       runRepo,
		sessionRepo:   storage.NewSessionRepo(db),
		committedRepo: storage.NewCommittedRepo(db),
		provRepo:      storage.NewProvenanceRepo(db),
		ontologyRepo:  ontologyRepo,
		machine:       machine,
		queueMgr:      queueMgr,
		starter:       starter,
		temporal:      tc,
	}
	s.reviewCtl = review.NewController(
		s.sessionRepo, storage.NewEntityRepo(db), s.committedRepo, resolver,
		rerunFunc(s.rerunStep),
	)
	return s
}

// QueueManager exposes the dispatcher loop for the main to run.
func (s *Server) QueueManager() *queue.Manager {
	return s.queueMgr
}

type rerunFunc func(ctx context.Context, caseID, stepID string) error

func (f rerunFunc) Rerun(ctx context.Context, caseID, stepID string) error {
	return f(ctx, caseID, stepID)
}

// rerunStep replaces any active run for the case and starts a fresh one.
func (s *Server) rerunStep(ctx context.Context, caseID, stepID string) error {
	run, err := s.machine.Advance(ctx, caseID, stepID, pipeline.AdvanceOptions{Supersede: true})
	if err != nil {
		return err
	}
	return s.starter.StartStepRun(ctx, run)
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/steps", s.handleSteps)
	mux.HandleFunc("/classes", s.handleClasses)
	mux.HandleFunc("/cases", s.handleCases)
	mux.HandleFunc("/cases/", s.handleCasesScoped)
	mux.HandleFunc("/queue", s.handleQueue)
	mux.HandleFunc("/queue/", s.handleQueueScoped)
	mux.HandleFunc("/sessions/", s.handleSessionsScoped)
	mux.HandleFunc("/runs/", s.handleRunsScoped)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	type stepView struct {
		ID            string               `json:"id"`
		Title         string               `json:"title"`
		Section       string               `json:"section"`
		ConceptTypes  []models.ConceptType `json:"concept_types"`
		Prerequisites []string             `json:"prerequisites"`
	}
	out := make([]stepView, 0)
	for _, st := range pipeline.Steps() {
		out = append(out, stepView{
			ID: st.ID, Title: st.Title, Section: st.Section,
			ConceptTypes: st.ConceptTypes, Prerequisites: st.Prerequisites,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": out})
}

// handleClasses lists the known ontology classes, optionally filtered by
// concept type. The review UI uses it to offer labels that will resolve.
func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	classes, err := s.ontologyRepo.ListClasses(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"classes": classes})
}

func (s *Server) handleCases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cases, err := s.caseRepo.ListCases(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cases": cases})
	case http.MethodPost:
		var req struct {
			Title      string `json:"title"`
			Facts      string `json:"facts"`
			Discussion string `json:"discussion"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("title is required"))
			return
		}
		if strings.TrimSpace(req.Facts) == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("facts section is required"))
			return
		}

		cs := models.Case{CaseID: uuid.NewString(), Title: req.Title, CreatedAt: time.Now().UTC()}
		sections := []models.CaseSection{{CaseID: cs.CaseID, Name: "facts", Content: req.Facts}}
		if strings.TrimSpace(req.Discussion) != "" {
			sections = append(sections, models.CaseSection{CaseID: cs.CaseID, Name: "discussion", Content: req.Discussion})
		}
		if err := s.caseRepo.CreateCase(r.Context(), cs, sections); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, cs)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleCasesScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/cases/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("case id required"))
		return
	}

	if parts[0] == "upload" {
		s.handleCaseUpload(w, r)
		return
	}

	caseID := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		cs, err := s.caseRepo.GetCase(r.Context(), caseID)
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		runs, err := s.runRepo.ListRuns(r.Context(), caseID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"case": cs, "runs": runs})
		return
	}

	switch parts[1] {
	case "advance":
		s.handleCaseAdvance(w, r, caseID)
	case "cancel":
		s.handleCaseCancel(w, r, caseID)
	case "reprocess":
		s.handleCaseReprocess(w, r, caseID)
	case "runs":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		runs, err := s.runRepo.ListRuns(r.Context(), caseID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	case "entities":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		entities, err := s.committedRepo.ListByCase(r.Context(), caseID, r.URL.Query().Get("step_id"))
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
	case "session":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		stepID := r.URL.Query().Get("step_id")
		if stepID == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("step_id is required"))
			return
		}
		sess, found, err := s.reviewCtl.LatestSession(r.Context(), caseID, stepID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if !found {
			writeErr(w, http.StatusNotFound, fmt.Errorf("no live session for step %s", stepID))
			return
		}
		writeJSON(w, http.StatusOK, sess)
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("unknown case operation %q", parts[1]))
	}
}

func (s *Server) handleCaseUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "case-*.pdf")
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		_ = tmp.Close()
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if err := tmp.Close(); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	text, err := casedoc.ExtractText(tmp.Name())
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = casedoc.GuessTitle(text)
	}
	cs := models.Case{CaseID: uuid.NewString(), Title: title, CreatedAt: time.Now().UTC()}
	sections := casedoc.SplitSections(cs.CaseID, text)
	if len(sections) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no case text in %s", filepath.Base(header.Filename)))
		return
	}
	if err := s.caseRepo.CreateCase(r.Context(), cs, sections); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	names := make([]string, 0, len(sections))
	for _, sec := range sections {
		names = append(names, sec.Name)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"case": cs, "sections": names})
}

func (s *Server) handleCaseAdvance(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		StepID    string `json:"step_id"`
		Supersede bool   `json:"supersede"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if req.StepID == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("step_id is required"))
		return
	}

	run, err := s.machine.Advance(r.Context(), caseID, req.StepID, pipeline.AdvanceOptions{Supersede: req.Supersede})
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrUnknownStep):
			writeErr(w, http.StatusBadRequest, err)
		case errors.Is(err, pipeline.ErrPrerequisiteNotMet):
			writeErr(w, http.StatusConflict, err)
		case errors.Is(err, pipeline.ErrRunConflict):
			writeErr(w, http.StatusConflict, err)
		default:
			writeErr(w, http.StatusInternalServerError, err)
		}
		return
	}
	if err := s.starter.StartStepRun(r.Context(), run); err != nil {
		_, _ = s.machine.MarkFailed(r.Context(), run.RunID, "start workflow: "+err.Error())
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleCaseCancel(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	run, found, err := s.runRepo.ActiveRun(r.Context(), caseID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if !found {
		writeErr(w, http.StatusNotFound, fmt.Errorf("no active run for case %s", caseID))
		return
	}

	if run.Status == models.RunRunning {
		// The workflow observes the cancel, discards its session and records
		// the terminal status itself.
		if err := s.temporal.CancelWorkflow(r.Context(), queue.WorkflowIDForRun(run.RunID), ""); err == nil {
			writeJSON(w, http.StatusAccepted, map[string]any{"run_id": run.RunID, "status": "cancelling"})
			return
		}
	}

	// Queued run, or the workflow is already gone: mark directly.
	marked, err := s.machine.MarkCancelled(r.Context(), run.RunID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, marked)
}

func (s *Server) handleCaseReprocess(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		StepID string `json:"step_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if _, ok := pipeline.StepByID(req.StepID); !ok {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown step %q", req.StepID))
		return
	}
	if err := s.reviewCtl.ClearAndRerun(r.Context(), caseID, req.StepID); err != nil {
		if errors.Is(err, pipeline.ErrPrerequisiteNotMet) {
			writeErr(w, http.StatusConflict, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"case_id": caseID, "step_id": req.StepID, "status": "rerunning"})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap, err := s.queueMgr.Status(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		failures, err := s.runRepo.RecentFailures(r.Context(), 10)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		activeRuns, err := s.runRepo.CountActive(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		idle := snap.MaxConcurrent - snap.Running
		if idle < 0 {
			idle = 0
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"entries":         snap.Entries,
			"running":         snap.Running,
			"active_runs":     activeRuns,
			"max_concurrent":  snap.MaxConcurrent,
			"idle_slots":      idle,
			"recent_failures": failures,
		})
	case http.MethodPost:
		var req struct {
			CaseID string `json:"case_id"`
			StepID string `json:"step_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		if req.CaseID == "" || req.StepID == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("case_id and step_id are required"))
			return
		}
		entry, created, err := s.queueMgr.Enqueue(r.Context(), req.CaseID, req.StepID)
		if err != nil {
			if errors.Is(err, pipeline.ErrUnknownStep) {
				writeErr(w, http.StatusBadRequest, err)
				return
			}
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		status := http.StatusCreated
		if !created {
			status = http.StatusOK
		}
		writeJSON(w, status, entry)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleQueueScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/queue/"), "/")
	switch rest {
	case "clear":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		n, err := s.queueMgr.Clear(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": n})
	case "reorder":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var req struct {
			EntryIDs []string `json:"entry_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		if len(req.EntryIDs) == 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("entry_ids are required"))
			return
		}
		if err := s.queueMgr.Reorder(r.Context(), req.EntryIDs); err != nil {
			writeErr(w, http.StatusConflict, err)
			return
		}
		snap, err := s.queueMgr.Status(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	default:
		if r.Method != http.MethodDelete {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		if err := s.queueMgr.Remove(r.Context(), rest); err != nil {
			if errors.Is(err, queue.ErrNotQueued) {
				writeErr(w, http.StatusNotFound, err)
				return
			}
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": rest})
	}
}

func (s *Server) handleSessionsScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("session operation required"))
		return
	}
	sessionID := parts[0]

	switch parts[1] {
	case "entities":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		entities, err := s.reviewCtl.ListStaged(r.Context(), sessionID)
		if err != nil {
			writeReviewErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
	case "edit":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var req review.EditRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		entity, err := s.reviewCtl.Edit(r.Context(), req)
		if err != nil {
			writeReviewErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entity)
	case "approve":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var req struct {
			EntityID string `json:"entity_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		entity, err := s.reviewCtl.ApproveNewClass(r.Context(), req.EntityID)
		if err != nil {
			writeReviewErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entity)
	case "delete":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var req struct {
			EntityIDs []string `json:"entity_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		n, err := s.reviewCtl.BulkDelete(r.Context(), sessionID, req.EntityIDs)
		if err != nil {
			writeReviewErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
	case "commit":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		committed, err := s.reviewCtl.Commit(r.Context(), sessionID)
		if err != nil {
			writeReviewErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"committed": committed})
	case "prompt":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		rec, err := s.provRepo.GetPrompt(r.Context(), sessionID)
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("unknown session operation %q", parts[1]))
	}
}

func (s *Server) handleRunsScoped(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	runID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/runs/"), "/")
	if runID == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("run id required"))
		return
	}

	run, err := s.runRepo.GetRun(r.Context(), runID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}

	// Live runs answer from the workflow query; terminal runs from the DB.
	if run.Status == models.RunRunning {
		var prog workflows.RunProgress
		resp, qerr := s.temporal.QueryWorkflow(r.Context(), queue.WorkflowIDForRun(runID), "", workflows.QueryGetRunProgress)
		if qerr == nil {
			if derr := resp.Get(&prog); derr == nil {
				writeJSON(w, http.StatusOK, map[string]any{"run": run, "progress": prog})
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func writeReviewErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, review.ErrSessionNotLive),
		errors.Is(err, review.ErrNotApprovable),
		errors.Is(err, review.ErrUnresolved):
		writeErr(w, http.StatusConflict, err)
	case errors.Is(err, review.ErrCommitFailed):
		writeErr(w, http.StatusBadGateway, err)
	case strings.Contains(strings.ToLower(err.Error()), "not found"):
		writeErr(w, http.StatusNotFound, err)
	default:
		writeErr(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "CF-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "CF-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "CF-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		case status == http.StatusBadGateway:
			return apiError{
				Code:    "CF-API-5020",
				Message: "Commit could not be completed. Staged entities are preserved; retry the commit.",
			}
		default:
			return apiError{
				Code:    "CF-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "CF-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "CF-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "CF-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "CF-API-4005"
		msg = "This endpoint does not support the requested method."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		switch {
		case strings.Contains(raw, "title is required"):
			msg = "Case title is required."
		case strings.Contains(raw, "facts section is required"):
			msg = "The facts section is required."
		case strings.Contains(raw, "step_id is required"), strings.Contains(raw, "unknown step"):
			msg = "A valid step id is required."
		case strings.Contains(raw, "case_id and step_id are required"):
			msg = "Both case and step are required."
		case strings.Contains(raw, "prerequisites not completed"):
			msg = "Earlier steps must complete before this one can run."
		case strings.Contains(raw, "already has an active run"):
			msg = "The case already has an active run. Cancel or supersede it first."
		case strings.Contains(raw, "discarded or already committed"):
			msg = "This session is no longer open for review."
		case strings.Contains(raw, "entities without a class"):
			msg = "Every staged entity needs a class match or an approved new class before commit."
		case strings.Contains(raw, "no files provided"):
			msg = "No PDF file was provided."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
