package v1

import (
	"github.com/forbiddencoding/deal-notifier/common/persistence/entity"
	"github.com/forbiddencoding/deal-notifier/services/app/categories"
	"github.com/go-chi/chi/v5"
	"net/http"
	"strconv"
)

type CategoryHandler struct {
	categoryService categories.Servicer
}

func NewCategoryHandler(categoryService categories.Servicer) *CategoryHandler {
	return &CategoryHandler{categoryService: categoryService}
}

func guildID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return parseID(w, chi.URLParam(r, "guildID"), "guild id")
}

func (h *CategoryHandler) CreateJobPost() http.HandlerFunc {
	type request struct {
		Slug           string   `json:"slug"`
		Name           string   `json:"name"`
		ChannelID      int64    `json:"channel_id,string"`
		Frequency      string   `json:"frequency"`
		Time           string   `json:"time"`
		Day            string   `json:"day"`
		Date           int      `json:"date"`
		MinTemperature int      `json:"min_temperature"`
		MaxPrice       *float64 `json:"max_price"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		guild, ok := guildID(w, r)
		if !ok {
			return
		}

		var req request
		if !decode(w, r, &req) {
			return
		}

		res, err := h.categoryService.CreateJob(r.Context(), &categories.CreateJobInput{
			GuildID:        guild,
			ChannelID:      req.ChannelID,
			Slug:           req.Slug,
			Name:           req.Name,
			Frequency:      req.Frequency,
			Time:           req.Time,
			Day:            req.Day,
			Date:           req.Date,
			MinTemperature: req.MinTemperature,
			MaxPrice:       req.MaxPrice,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, res)
	}
}

func (h *CategoryHandler) ListJobsGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guild, ok := guildID(w, r)
		if !ok {
			return
		}

		res, err := h.categoryService.ListJobs(r.Context(), &categories.ListJobsInput{
			GuildID: guild,
			Status:  entity.JobStatus(r.URL.Query().Get("status")),
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func (h *CategoryHandler) GetJobGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guild, ok := guildID(w, r)
		if !ok {
			return
		}

		res, err := h.categoryService.GetJob(r.Context(), &categories.GetJobInput{
			GuildID: guild,
			Slug:    chi.URLParam(r, "slug"),
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func (h *CategoryHandler) UpdateStatusPut() http.HandlerFunc {
	type request struct {
		Status entity.JobStatus `json:"status"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		guild, ok := guildID(w, r)
		if !ok {
			return
		}

		var req request
		if !decode(w, r, &req) {
			return
		}

		if _, err := h.categoryService.UpdateStatus(r.Context(), &categories.UpdateStatusInput{
			GuildID: guild,
			Slug:    chi.URLParam(r, "slug"),
			Status:  req.Status,
		}); err != nil {
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *CategoryHandler) DeleteJobDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guild, ok := guildID(w, r)
		if !ok {
			return
		}

		if _, err := h.categoryService.DeleteJob(r.Context(), &categories.DeleteJobInput{
			GuildID: guild,
			Slug:    chi.URLParam(r, "slug"),
		}); err != nil {
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *CategoryHandler) StatsGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guild, ok := guildID(w, r)
		if !ok {
			return
		}

		var days int
		if raw := r.URL.Query().Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid days"})
				return
			}
			days = n
		}

		res, err := h.categoryService.Stats(r.Context(), &categories.StatsInput{
			GuildID: guild,
			Slug:    chi.URLParam(r, "slug"),
			Days:    days,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}
