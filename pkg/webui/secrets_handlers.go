package webui

import (
	"encoding/json"
	"net/http"
)

// SecretEntry represents a secret for the API response (name only, no value).
type SecretEntry struct {
	Name string `json:"name"`
}

// handleSecretsRouter routes GET/POST to appropriate handlers.
func (s *Server) handleSecretsRouter(w http.ResponseWriter, r *http.Request) {
	if s.deps.Secrets == nil {
		s.unavailable(w, "secrets")
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleSecretsList(w, r)
	case http.MethodPost:
		s.handleSecretsSet(w, r)
	default:
		s.methodNotAllowed(w)
	}
}

// handleSecretsList implements GET /api/secrets. Values are never returned.
func (s *Server) handleSecretsList(w http.ResponseWriter, _ *http.Request) {
	names := s.deps.Secrets.Names()
	entries := make([]SecretEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, SecretEntry{Name: name})
	}
	s.writeJSON(w, http.StatusOK, entries)
	s.logger.Debug("Served secrets list: %d secrets", len(entries))
}

// handleSecretsSet implements POST /api/secrets.
func (s *Server) handleSecretsSet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Name == "" {
		s.writeError(w, http.StatusBadRequest, "secret name is required")
		return
	}
	if body.Value == "" {
		s.writeError(w, http.StatusBadRequest, "secret value is required")
		return
	}
	if !validSecretName(body.Name) {
		s.writeError(w, http.StatusBadRequest, "secret name must contain only alphanumeric characters and underscores")
		return
	}

	s.deps.Secrets.Set(body.Name, body.Value)
	s.persistSecrets()

	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Name: body.Name})
	s.logger.Info("Secret %q set", body.Name)
}

// handleSecretsDelete implements DELETE /api/secrets/{name}.
func (s *Server) handleSecretsDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.methodNotAllowed(w)
		return
	}
	if s.deps.Secrets == nil {
		s.unavailable(w, "secrets")
		return
	}
	name := r.PathValue("name")
	if !validSecretName(name) {
		s.writeError(w, http.StatusBadRequest, "invalid secret name")
		return
	}

	s.deps.Secrets.Delete(name)
	s.persistSecrets()

	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Name: name})
	s.logger.Info("Secret %q deleted", name)
}

// persistSecrets writes the encrypted secrets file. Without a project dir and password
// secrets only live in memory.
func (s *Server) persistSecrets() {
	if s.deps.ProjectDir == "" || s.deps.Password == "" {
		s.logger.Warn("No project password set - secrets stored in memory only")
		return
	}
	if err := s.deps.Secrets.Save(s.deps.ProjectDir, s.deps.Password); err != nil {
		s.logger.Error("Failed to persist secrets: %v", err)
	}
}

func validSecretName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum && r != '_' {
			return false
		}
	}
	return true
}
