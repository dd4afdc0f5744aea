package confirm

// Store indexes live confirmation requests by token and by user. The Manager
// serializes all access, so implementations do not need internal locking.
// Multi-instance deployments must plug in a shared keyed store here: the
// default in-process store is invisible to other instances.
type Store interface {
	Put(req *Request)
	Get(token string) (*Request, bool)
	Delete(token string)
	UserTokens(userID string) []string
	AllTokens() []string
}

// memoryStore holds the two in-memory maps: token→request and user→token set.
type memoryStore struct {
	byToken map[string]*Request
	byUser  map[string]map[string]struct{}
}

// NewMemoryStore creates the default single-instance store.
func NewMemoryStore() Store {
	return &memoryStore{
		byToken: make(map[string]*Request),
		byUser:  make(map[string]map[string]struct{}),
	}
}

func (s *memoryStore) Put(req *Request) {
	s.byToken[req.Token] = req
	set, ok := s.byUser[req.UserID]
	if !ok {
		set = make(map[string]struct{})
		s.byUser[req.UserID] = set
	}
	set[req.Token] = struct{}{}
}

func (s *memoryStore) Get(token string) (*Request, bool) {
	req, ok := s.byToken[token]
	return req, ok
}

func (s *memoryStore) Delete(token string) {
	req, ok := s.byToken[token]
	if !ok {
		return
	}
	delete(s.byToken, token)
	if set, ok := s.byUser[req.UserID]; ok {
		delete(set, token)
		if len(set) == 0 {
			delete(s.byUser, req.UserID)
		}
	}
}

func (s *memoryStore) UserTokens(userID string) []string {
	set := s.byUser[userID]
	tokens := make([]string, 0, len(set))
	for token := range set {
		tokens = append(tokens, token)
	}
	return tokens
}

func (s *memoryStore) AllTokens() []string {
	tokens := make([]string, 0, len(s.byToken))
	for token := range s.byToken {
		tokens = append(tokens, token)
	}
	return tokens
}
