package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/models"
	"github.com/ZhengyiNLP/sister-expense-tracker/repository"
	"github.com/ZhengyiNLP/sister-expense-tracker/types"

	"github.com/gin-gonic/gin"
)

type RecordsHandler struct {
	repo repository.RecordRepository
	now  func() time.Time
}

func NewRecordsHandler(repo repository.RecordRepository) *RecordsHandler {
	return &RecordsHandler{repo: repo, now: time.Now}
}

func (h *RecordsHandler) WithClock(now func() time.Time) *RecordsHandler {
	h.now = now
	return h
}

func (h *RecordsHandler) GetRecords(c *gin.Context) {
	records, err := h.repo.ListRecords(c.Request.Context(), c.GetInt("userId"))
	if err != nil {
		internalError(c, "list records failed", err)
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(records))
}

func (h *RecordsHandler) CreateRecord(c *gin.Context) {
	var req struct {
		Type     string          `json:"type"`
		Amount   json.RawMessage `json:"amount"`
		Category string          `json:"category"`
		Date     string          `json:"date"`
		Note     string          `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeInvalidRequest, "Request body must be a JSON object"))
		return
	}

	recType := models.RecordType(strings.TrimSpace(req.Type))
	if !recType.Valid() {
		c.JSON(http.StatusBadRequest, types.NewFieldErrorResponse("type", "type must be income or expense"))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewFieldErrorResponse("amount", err.Error()))
		return
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		c.JSON(http.StatusBadRequest, types.NewFieldErrorResponse("category", "category is required"))
		return
	}
	date, err := models.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewFieldErrorResponse("date", "date must be a valid YYYY-MM-DD date"))
		return
	}

	record := &models.Record{
		UserID:    c.GetInt("userId"),
		Type:      recType,
		Amount:    amount,
		Category:  category,
		Date:      date,
		Note:      strings.TrimSpace(req.Note),
		CreatedAt: h.now().UTC(),
	}
	if err := h.repo.CreateRecord(c.Request.Context(), record); err != nil {
		if errors.Is(err, repository.ErrUnknownOwner) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "User not found"))
			return
		}
		internalError(c, "create record failed", err)
		return
	}
	c.JSON(http.StatusCreated, types.NewSuccessResponse(types.CreateRecordResponse{
		Message: "Record created",
		ID:      record.ID,
		Record:  record,
	}))
}

var (
	errAmountMissing  = errors.New("amount is required")
	errAmountInvalid  = errors.New("amount must be a number")
	errAmountPositive = errors.New("amount must be greater than 0")
)

// parseAmount accepts a JSON number or a numeric string.
func parseAmount(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errAmountMissing
	}
	var amount float64
	if err := json.Unmarshal(raw, &amount); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, errAmountInvalid
		}
		if amount, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, errAmountInvalid
		}
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, errAmountInvalid
	}
	if amount <= 0 {
		return 0, errAmountPositive
	}
	return amount, nil
}

func (h *RecordsHandler) DeleteRecord(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "Invalid ID"))
		return
	}
	deleted, err := h.repo.DeleteRecord(c.Request.Context(), c.GetInt("userId"), id)
	if err != nil {
		internalError(c, "delete record failed", err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "Record not found"))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(types.MessageResponse{Message: "Record deleted"}))
}

func (h *RecordsHandler) DeleteAllRecords(c *gin.Context) {
	n, err := h.repo.DeleteAllRecords(c.Request.Context(), c.GetInt("userId"))
	if err != nil {
		internalError(c, "delete all records failed", err)
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(types.DeleteAllResponse{
		Message:      "Records deleted",
		DeletedCount: n,
	}))
}
