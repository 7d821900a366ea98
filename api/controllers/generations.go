package controllers

import (
	"net/http"

	"github.com/inkwell-systems/comicforge-backend/api/responses"
	"github.com/inkwell-systems/comicforge-backend/internal/generation"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

// GenerationEnqueue queues an asynchronous task for the project. The route
// decides the task kind, so /generate and /export share one controller.
func GenerationEnqueue(dispatcher *generation.Dispatcher, taskType enums.TaskType, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dispatcher == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "generation dispatcher unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projectID, err := parseUUIDParam(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := dispatcher.Enqueue(r.Context(), projectID, userID, taskType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}

func GenerationGet(dispatcher *generation.Dispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dispatcher == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "generation dispatcher unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		generationID, err := parseUUIDParam(r, "generationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := dispatcher.Get(r.Context(), generationID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// GenerationLatest returns the most recent task for a project, for polling.
func GenerationLatest(dispatcher *generation.Dispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dispatcher == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "generation dispatcher unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projectID, err := parseUUIDParam(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := dispatcher.LatestForProject(r.Context(), projectID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
