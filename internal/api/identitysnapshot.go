package api

import (
	"encoding/json"
	"os"

	"github.com/inflatable-cookie/convergence-sub001/internal/model"
)

// readIdentitySnapshot loads users.json and tokens.json (§6 "Persisted
// identity"), reporting empty slices rather than an error when either
// file is missing — the very first server start has neither.
func readIdentitySnapshot(usersPath, tokensPath string) ([]*model.User, []*model.AccessToken, error) {
	users, err := readJSONArray[model.User](usersPath)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := readJSONArray[model.AccessToken](tokensPath)
	if err != nil {
		return nil, nil, err
	}
	return users, tokens, nil
}

// writeIdentitySnapshot atomically (re)writes users.json and
// tokens.json. Both files are written independently; a crash between
// the two leaves the previous snapshot of whichever file didn't get
// written, which the next successful persist rewrites from the
// in-memory store.
func writeIdentitySnapshot(usersPath, tokensPath string, users []*model.User, tokens []*model.AccessToken) error {
	if err := writeJSONArray(usersPath, users); err != nil {
		return err
	}
	return writeJSONArray(tokensPath, tokens)
}

func readJSONArray[T any](path string) ([]*T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []*T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeJSONArray[T any](path string, items []*T) error {
	if items == nil {
		items = []*T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
