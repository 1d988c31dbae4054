package handler

type ConvertQuery struct {
	From   string `form:"from" binding:"required"`
	To     string `form:"to" binding:"required"`
	Amount string `form:"amount"`
}

type FormatQuery struct {
	Currency string `form:"currency" binding:"required"`
	Amount   string `form:"amount" binding:"required"`
}

type PairURI struct {
	From string `uri:"from" binding:"required"`
	To   string `uri:"to" binding:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
