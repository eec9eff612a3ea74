package call

// CreateCallDTO represents the request payload for logging a maintenance call
type CreateCallDTO struct {
	Title           string   `json:"title" validate:"notblank,max=200"`
	Description     string   `json:"description" validate:"notblank,max=4000"`
	CallType        string   `json:"call_type" validate:"notblank,max=100"`
	Building        string   `json:"building" validate:"notblank,max=200"`
	Province        string   `json:"province" validate:"notblank"`
	Region          Region   `json:"region" validate:"required"`
	Priority        Priority `json:"priority" validate:"required"`
	ReporterName    string   `json:"reporter_name,omitempty" validate:"omitempty,max=200"`
	ReporterContact string   `json:"reporter_contact,omitempty" validate:"omitempty,max=200"`
}

type AssignDTO struct {
	AssigneeID int64 `json:"assignee_id" validate:"required,gt=0"`
}

type TransitionDTO struct {
	Status Status `json:"status" validate:"required"`
}

type CommentDTO struct {
	Body       string `json:"body" validate:"notblank,max=4000"`
	IsInternal bool   `json:"is_internal"`
}

// ListFilter narrows GET /calls. Empty fields do not filter.
type ListFilter struct {
	Status     Status
	Region     Region
	Province   string
	AssignedTo *int64
	ReporterID *int64
	Limit      int
	Offset     int
}

type ListResponse struct {
	Calls  []*MaintenanceCall `json:"calls"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// CallResponse adds derived SLA data to a call.
type CallResponse struct {
	*MaintenanceCall
	ResponseTargetMinutes int   `json:"response_target_minutes"`
	MetResponseTarget     *bool `json:"met_response_target,omitempty"`
}

func NewCallResponse(c *MaintenanceCall) CallResponse {
	resp := CallResponse{
		MaintenanceCall:       c,
		ResponseTargetMinutes: int(c.Priority.ResponseTarget().Minutes()),
	}
	if met, ok := c.MeetsResponseTarget(); ok {
		resp.MetResponseTarget = &met
	}
	return resp
}

type CommentsResponse struct {
	Comments []*Comment `json:"comments"`
}

type AttachmentsResponse struct {
	Attachments []*Attachment `json:"attachments"`
}
