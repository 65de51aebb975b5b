package decorator

func NewThread(ID, PID string) *Thread {
	realPID := ""
	if ID != PID {
		realPID = PID
	}
	return &Thread{ID: ID, PID: realPID}
}

func CheckThread(thread *Thread, ID string) *Thread {
	if thread == nil {
		return &Thread{ID: ID}
	}
	if thread.ID == "" {
		thread.ID = ID
	}
	return thread
}

// HasReturnRoute tells if the transport decorator asks for return routing.
func (t *Transport) HasReturnRoute() bool {
	if t == nil {
		return false
	}
	return t.ReturnRoute == ReturnRouteAll || t.ReturnRoute == ReturnRouteThread
}

// ReturnRouteFor tells if replies of the thread can be return routed.
func (t *Transport) ReturnRouteFor(threadID string) bool {
	if t == nil {
		return false
	}
	switch t.ReturnRoute {
	case ReturnRouteAll:
		return true
	case ReturnRouteThread:
		return t.ReturnRouteThread == threadID
	}
	return false
}

// NewJSONAttachment builds an attachment carrying the JSON data inline.
func NewJSONAttachment(ID string, data any) Attachment {
	return Attachment{
		ID:       ID,
		MimeType: "application/json",
		Data:     AttachmentData{JSON: data},
	}
}
