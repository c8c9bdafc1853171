package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/overclock/pkg/buildinfo"
	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/pipeline"
	"github.com/matzehuels/overclock/pkg/recipe"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error code and a user-facing message.
type ErrorDetail struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

type healthResponse struct {
	Status  string         `json:"status"`
	Catalog string         `json:"catalog"`
	Build   buildinfo.Info `json:"build"`
}

type recipesResponse struct {
	Count   int              `json:"count"`
	Recipes []*recipe.Recipe `json:"recipes"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		s.logger.Error("encode response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	if status >= 500 {
		s.logger.Error("request failed", "code", code, "err", err)
	}
	s.respondJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: errors.UserMessage(err)}})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, healthResponse{Status: "ok", Catalog: s.repo.Source(), Build: buildinfo.Get()})
}

func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	cat, err := s.repo.Load(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	building := r.URL.Query().Get("building")
	produces := r.URL.Query().Get("produces")

	out := make([]*recipe.Recipe, 0, len(cat))
	for _, rec := range cat.Sorted() {
		if building != "" && rec.Building != building {
			continue
		}
		if produces != "" && !rec.Produces(produces) {
			continue
		}
		out = append(out, rec)
	}
	s.respondJSON(w, http.StatusOK, recipesResponse{Count: len(out), Recipes: out})
}

func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cat, err := s.repo.Load(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	rec, ok := cat[name]
	if !ok {
		s.respondError(w, errors.New(errors.ErrCodeNotFound, "recipe %q not found", name))
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	opts, err := decodePlan(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if opts.Catalog != "" {
		s.respondError(w, errors.New(errors.ErrCodeInvalidInput, "plans cannot choose a catalog; this server uses %s", s.repo.Source()))
		return
	}
	opts.Refresh, _ = strconv.ParseBool(r.URL.Query().Get("refresh"))
	opts.Logger = s.logger

	s.solve.Lock()
	res, err := s.runner.Execute(r.Context(), s.repo, *opts)
	s.solve.Unlock()
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.plans.Add(res.ID, res)
	w.Header().Set("Location", "/v1/plans/"+res.ID)
	s.respondJSON(w, http.StatusCreated, res)
}

// decodePlan reads a plan as JSON, or as TOML when the request says so.
func decodePlan(r *http.Request) (*pipeline.Options, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read plan")
	}
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/toml" {
		return pipeline.DecodeOptions(data)
	}

	var opts pipeline.Options
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode plan")
	}
	return &opts, nil
}

func (s *Server) lookupPlan(w http.ResponseWriter, r *http.Request) (*pipeline.Result, bool) {
	id := chi.URLParam(r, "id")
	res, ok := s.plans.Get(id)
	if !ok {
		s.respondError(w, errors.New(errors.ErrCodeNotFound, "plan %q not found", id))
	}
	return res, ok
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.lookupPlan(w, r); ok {
		s.respondJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handlePlanGraph(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lookupPlan(w, r)
	if !ok {
		return
	}
	artifacts, err := pipeline.Render(r.Context(), res, []string{pipeline.FormatSVG})
	if err != nil {
		s.respondError(w, errors.Wrap(errors.ErrCodeInternal, err, "render graph"))
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(artifacts[pipeline.FormatSVG])
}
