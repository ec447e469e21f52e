package common

type PaginatedResponse struct {
	Data        interface{} `json:"data"`
	Count       int64       `json:"count"`
	CurrentPage int         `json:"currentPage"`
	LastPage    int         `json:"lastPage"`
	NextPage    int         `json:"nextPage"`
	PrevPage    int         `json:"prevPage"`
	Message     string      `json:"message"`
}

func PaginateResponse(data interface{}, total int64, page, limit int, message string) PaginatedResponse {
	if limit <= 0 {
		limit = 10
	}
	lastPage := int((total + int64(limit) - 1) / int64(limit))

	next := page + 1
	if next > lastPage {
		next = 0
	}
	prev := page - 1
	if prev < 0 {
		prev = 0
	}

	return PaginatedResponse{
		Data:        data,
		Count:       total,
		CurrentPage: page,
		LastPage:    lastPage,
		NextPage:    next,
		PrevPage:    prev,
		Message:     message,
	}
}
