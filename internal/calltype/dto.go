package calltype

type CallTypeResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CallTypesResponse struct {
	CallTypes []CallTypeResponse `json:"call_types"`
}
