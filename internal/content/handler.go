package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"wyspamat/internal/app/apiresp"
)

type Handler struct {
	svc bankService
}

type bankService interface {
	ImportBankExcel(ctx context.Context, r io.Reader) (*BankImportReport, error)
	ExportBankExcel(ctx context.Context) ([]byte, error)
}

func NewHandler(svc bankService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ImportBank(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	report, err := h.svc.ImportBankExcel(r.Context(), file)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, report)
}

func (h *Handler) ExportBank(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.ExportBankExcel(r.Context())
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "export failed")
		return
	}
	filename := fmt.Sprintf("exercise-bank-%s.xlsx", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
