// Package identity implements Component D: users, bearer access
// tokens, the bootstrap handshake that creates the first admin, and the
// repo-scoped ACL predicates every operation consults.
//
// Grounded on original_source's identity_store.rs (user/token shape,
// bootstrap_identity, the users.json/tokens.json sidecar layout) and
// handlers_identity/tokens.rs (mint/list/revoke semantics). The
// original signs nothing — a token is just a random secret whose
// blake3 hash is stored; here the plaintext bearer credential is itself
// a signed JWT (golang-jwt/jwt/v4, the pack's JWT library, adapted from
// the teacher's registry/auth/token package which performs the
// equivalent signed-claims verification over go-jose). Authenticate
// checks the signature first; a value that fails that check falls back
// to a hash lookup over the token table (the path fixed dev tokens use),
// so it authenticates only if its hash matches a stored token.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
)

// Claims is the private claim set embedded in every minted bearer
// token. The token's own ID is carried in the claims and used as the
// lookup key on authentication; the record found is accepted only if
// its stored hash matches the hash of the presented bearer value.
type Claims struct {
	jwt.RegisteredClaims
	TokenID string `json:"tid"`
	UserID  string `json:"uid"`
}

// Store is the cross-repo identity index: users and access tokens, kept
// under their own lock independent of any repo's lock (per the
// concurrency model, identity lookups must never block on a repo
// write).
type Store struct {
	mu sync.RWMutex

	signingKey []byte

	users  map[string]*model.User
	tokens map[string]*model.AccessToken
}

// NewStore returns an empty identity store that signs and verifies
// tokens with signingKey.
func NewStore(signingKey []byte) *Store {
	return &Store{
		signingKey: signingKey,
		users:      make(map[string]*model.User),
		tokens:     make(map[string]*model.AccessToken),
	}
}

// Load replaces the store's contents, used when hydrating from disk.
func (s *Store) Load(users []*model.User, tokens []*model.AccessToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]*model.User, len(users))
	for _, u := range users {
		s.users[u.ID] = u
	}
	s.tokens = make(map[string]*model.AccessToken, len(tokens))
	for _, t := range tokens {
		s.tokens[t.ID] = t
	}
}

// Snapshot returns copies of every user and token, sorted the way
// identity_store.rs's persist_identity_to_disk sorts them (users by
// handle, tokens by created_at) so the on-disk JSON is diff-friendly.
func (s *Store) Snapshot() ([]*model.User, []*model.AccessToken) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		users = append(users, &cp)
	}
	sortUsersByHandle(users)

	tokens := make([]*model.AccessToken, 0, len(s.tokens))
	for _, t := range s.tokens {
		cp := *t
		tokens = append(tokens, &cp)
	}
	sortTokensByCreatedAt(tokens)

	return users, tokens
}

func sortUsersByHandle(users []*model.User) {
	for i := 1; i < len(users); i++ {
		for j := i; j > 0 && users[j-1].Handle > users[j].Handle; j-- {
			users[j-1], users[j] = users[j], users[j-1]
		}
	}
}

func sortTokensByCreatedAt(tokens []*model.AccessToken) {
	for i := 1; i < len(tokens); i++ {
		for j := i; j > 0 && tokens[j-1].CreatedAt > tokens[j].CreatedAt; j-- {
			tokens[j-1], tokens[j] = tokens[j], tokens[j-1]
		}
	}
}

// HashToken is the stored digest of a bearer token's plaintext. Plain
// crypto/sha256 is used here rather than a pack dependency: go-digest
// and blake3-via-original_source both exist for content-addressed
// object IDs, but a bearer secret's digest is an internal credential
// fingerprint, not a repository object, and introducing objectid's
// streaming Digester machinery here would only obscure a one-shot hash.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func computeTokenID(userID, tokenHash, createdAt string) string {
	h := objectid.Hasher()
	h.Write([]byte("token\x00"))
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(tokenHash))
	h.Write([]byte{0})
	h.Write([]byte(createdAt))
	return objectid.FromHash(h).String()
}

// MintToken issues and stores a new access token for userID, returning
// the bearer plaintext (a signed JWT) the caller must hand back to the
// client exactly once — only its hash is ever persisted.
func (s *Store) MintToken(userID, label string, now time.Time) (plaintext string, tok *model.AccessToken, err error) {
	createdAt := now.UTC().Format(time.RFC3339Nano)

	// The token's own ID is derived from (user_id, token_hash,
	// created_at), but the hash depends on the signed JWT, which in turn
	// would need to embed the ID: break the cycle by minting with a
	// provisional empty tid, hashing, deriving the real ID from that
	// hash, then re-signing with the final tid embedded. The hash stored
	// server-side is always of the final, fully-formed JWT.
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       "",
		},
		UserID: userID,
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", nil, apierr.Internal(err)
	}
	hash := HashToken(signed)
	id := computeTokenID(userID, hash, createdAt)

	claims.TokenID = id
	claims.RegisteredClaims.ID = id
	signed, err = s.sign(claims)
	if err != nil {
		return "", nil, apierr.Internal(err)
	}
	hash = HashToken(signed)

	tok = &model.AccessToken{
		ID:        id,
		UserID:    userID,
		TokenHash: hash,
		Label:     label,
		CreatedAt: createdAt,
	}

	s.mu.Lock()
	s.tokens[id] = tok
	s.mu.Unlock()

	return signed, tok, nil
}

func (s *Store) sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// Bootstrap creates the first admin user and its bootstrap token.
// Grounded on identity_store.rs::bootstrap_identity.
func (s *Store) Bootstrap(handle string, now time.Time) (*model.User, string, *model.AccessToken, error) {
	createdAt := now.UTC().Format(time.RFC3339Nano)
	h := objectid.Hasher()
	h.Write([]byte("user\x00"))
	h.Write([]byte(handle))
	h.Write([]byte{0})
	h.Write([]byte(createdAt))
	userID := objectid.FromHash(h).String()

	user := &model.User{
		ID:        userID,
		Handle:    handle,
		Admin:     true,
		CreatedAt: createdAt,
	}

	s.mu.Lock()
	s.users[userID] = user
	s.mu.Unlock()

	plaintext, tok, err := s.MintToken(userID, "bootstrap", now)
	if err != nil {
		return nil, "", nil, err
	}
	return user, plaintext, tok, nil
}

// RevokeToken marks a token revoked. subjectUserID must own the token
// or subjectAdmin must be true.
func (s *Store) RevokeToken(tokenID, subjectUserID string, subjectAdmin bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[tokenID]
	if !ok {
		return apierr.NotFound("token %s not found", tokenID)
	}
	if tok.UserID != subjectUserID && !subjectAdmin {
		return apierr.Forbidden("not authorized to revoke token %s", tokenID)
	}
	tok.RevokedAt = now.UTC().Format(time.RFC3339Nano)
	return nil
}

// Authenticate verifies a raw "Bearer <jwt>"-stripped token string,
// returning the subject user. Signature verification runs first; when
// it fails, or the claimed token id has no stored record with the same
// hash, the token table is scanned for a record whose hash equals the
// bearer value's hash.
func (s *Store) Authenticate(bearer string, now time.Time) (*model.User, *model.AccessToken, error) {
	hash := HashToken(bearer)

	var claims Claims
	parsed, err := jwt.ParseWithClaims(bearer, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	var tok *model.AccessToken
	if err == nil && parsed.Valid {
		tok, _ = s.tokens[claims.TokenID]
	}
	if tok == nil || tok.TokenHash != hash {
		// Not a well-formed JWT, or its claimed id doesn't match this
		// store's record of it: fall back to a direct hash lookup. This
		// is the only path a fixed-plaintext dev token (InstallFixedToken)
		// can ever authenticate through, since it was never signed.
		tok = nil
		for _, t := range s.tokens {
			if t.TokenHash == hash {
				tok = t
				break
			}
		}
	}
	if tok == nil {
		return nil, nil, apierr.Unauthorized("invalid bearer token")
	}
	if tok.RevokedAt != "" {
		return nil, nil, apierr.Unauthorized("token revoked")
	}
	if tok.ExpiresAt != "" && tok.ExpiresAt < now.UTC().Format(time.RFC3339Nano) {
		return nil, nil, apierr.Unauthorized("token expired")
	}

	user, ok := s.users[tok.UserID]
	if !ok {
		return nil, nil, apierr.Unauthorized("token owner no longer exists")
	}

	tok.LastUsedAt = now.UTC().Format(time.RFC3339Nano)
	userCopy := *user
	return &userCopy, tok, nil
}

// UserByHandle resolves a handle to a user, used for ACL-set backfill
// and for handle-based membership checks on lanes/readers/publishers.
func (s *Store) UserByHandle(handle string) (*model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Handle == handle {
			return u, true
		}
	}
	return nil, false
}

// UserByID resolves a user by their id.
func (s *Store) UserByID(id string) (*model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// CreateUser registers a new handle, failing with a Conflict apierr if
// the handle is already taken. Only an admin subject may call this
// (enforced by the caller); the store itself has no notion of a
// requester.
func (s *Store) CreateUser(handle, displayName string, admin bool, now time.Time) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Handle == handle {
			return nil, apierr.Conflict("handle %q already exists", handle)
		}
	}

	createdAt := now.UTC().Format(time.RFC3339Nano)
	h := objectid.Hasher()
	h.Write([]byte("user\x00"))
	h.Write([]byte(handle))
	h.Write([]byte{0})
	h.Write([]byte(createdAt))
	userID := objectid.FromHash(h).String()

	user := &model.User{
		ID:          userID,
		Handle:      handle,
		DisplayName: displayName,
		Admin:       admin,
		CreatedAt:   createdAt,
	}
	s.users[userID] = user
	return user, nil
}

// ListUsers returns every known user, sorted by handle.
func (s *Store) ListUsers() []*model.User {
	users, _ := s.Snapshot()
	return users
}

// TokensForUser returns every access token minted for userID, sorted by
// created_at, never including TokenHash in a form meant for the wire
// (callers render their own response shape and simply omit the hash).
func (s *Store) TokensForUser(userID string) []*model.AccessToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.AccessToken
	for _, t := range s.tokens {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortTokensByCreatedAt(out)
	return out
}

// TokenByID resolves a token record by id (hash/plaintext excluded from
// nothing here — callers must not leak TokenHash to the wire).
func (s *Store) TokenByID(id string) (*model.AccessToken, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[id]
	return t, ok
}

// InstallFixedToken registers a token record whose hash is already
// known, bypassing JWT minting entirely. Used only to seed a
// fixed-plaintext development token (configuration.Identity.DevToken)
// whose value must stay stable across restarts, unlike a normal minted
// bearer token which is a signed JWT generated fresh each time.
func (s *Store) InstallFixedToken(userID, tokenHash, label string) *model.AccessToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := time.Now().UTC().Format(time.RFC3339Nano)
	h := objectid.Hasher()
	h.Write([]byte("token\x00"))
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(tokenHash))
	h.Write([]byte{0})
	h.Write([]byte(createdAt))
	id := objectid.FromHash(h).String()

	tok := &model.AccessToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		Label:     label,
		CreatedAt: createdAt,
	}
	s.tokens[id] = tok
	return tok
}

// HandleIndex returns a handle->user_id map snapshot, used by
// per-record backfill at repo-load time. Per §3/§8, a handle claimed by
// more than one historical user is intentionally left out of the index
// rather than guessing which user it refers to.
func (s *Store) HandleIndex() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byHandle := make(map[string][]string)
	for _, u := range s.users {
		byHandle[u.Handle] = append(byHandle[u.Handle], u.ID)
	}
	idx := make(map[string]string, len(byHandle))
	for handle, ids := range byHandle {
		if len(ids) == 1 {
			idx[handle] = ids[0]
		}
	}
	return idx
}
