package http

// NumberRequest is the body of POST /tn and DELETE /tn.
type NumberRequest struct {
	Value string `json:"value" validate:"required,max=18"`
}

type NumberResponse struct {
	Message string `json:"message"`
	Value   string `json:"value"`
}

type VirtualNumberDTO struct {
	Value     string  `json:"value"`
	SessionID *string `json:"session_id"`
}

type PoolResponse struct {
	VirtualTNs []VirtualNumberDTO `json:"virtual_tns"`
	PoolSize   int                `json:"pool_size"`
	Available  int                `json:"available"`
	InUse      int                `json:"in_use"`
}

// CreateSessionRequest is the body of POST /session. ExpiryWindow is in minutes.
type CreateSessionRequest struct {
	ParticipantA string `json:"participant_a" validate:"required,max=18"`
	ParticipantB string `json:"participant_b" validate:"required,max=18"`
	ExpiryWindow *int   `json:"expiry_window,omitempty" validate:"omitempty,min=0,max=52560000"`
}

type CreateSessionResponse struct {
	Message      string  `json:"message"`
	SessionID    string  `json:"session_id"`
	ExpiryDate   *string `json:"expiry_date"`
	VirtualTN    string  `json:"virtual_tn"`
	ParticipantA string  `json:"participant_a"`
	ParticipantB string  `json:"participant_b"`
}

type SessionDTO struct {
	ID           string  `json:"id"`
	DateCreated  string  `json:"date_created"`
	VirtualTN    string  `json:"virtual_tn"`
	ParticipantA string  `json:"participant_a"`
	ParticipantB string  `json:"participant_b"`
	ExpiryDate   *string `json:"expiry_date"`
}

type ListSessionsResponse struct {
	TotalSessions int          `json:"total_sessions"`
	Sessions      []SessionDTO `json:"sessions"`
}

// TerminateSessionRequest is the body of DELETE /session.
type TerminateSessionRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type SessionEndedResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// InboundMessageRequest is the provider webhook body posted to /.
type InboundMessageRequest struct {
	To   string `json:"to" validate:"required,max=18"`
	From string `json:"from" validate:"required,max=18"`
	Body string `json:"body" validate:"max=1600"`
}

type ProxiedMessageResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}
