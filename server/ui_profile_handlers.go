package server

import (
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-alert-web/apiclient"
	"github.com/jrsteele09/go-alert-web/guard"
	apperrors "github.com/jrsteele09/go-alert-web/internal/errors"
	"github.com/jrsteele09/go-alert-web/internal/utils"
	"github.com/jrsteele09/go-alert-web/users"
)

var severities = []string{"low", "moderate", "severe", "extreme"}

const msgProfileSaved = "Profile updated."

// ProfileGetHandler renders the profile form (GET /profile)
func (s *Server) ProfileGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.pageDataFor(r, snapshotFrom(r), "Your profile", func(p *pageData) {
			p.Message = r.URL.Query().Get("message")
			p.Severities = severities
		})
		s.render(w, http.StatusOK, "profile.html", data)
	}
}

// ProfilePostHandler saves profile changes (POST /profile)
func (s *Server) ProfilePostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		update, fields := parseProfileForm(r)
		if len(fields) > 0 {
			s.renderProfileError(w, r, &apperrors.ValidationError{Fields: fields})
			return
		}

		store := storeFrom(r)
		if err := store.UpdateProfile(r.Context(), update); err != nil {
			snap := store.Snapshot()
			if !snap.Authenticated() {
				msg := snap.Notice
				if msg == "" {
					msg = apperrors.UserMessage(err)
				}
				redirectSuccess(w, r, guard.LoginURL(RouteProfile, msg))
				return
			}
			s.renderProfileError(w, r, err)
			return
		}

		redirectSuccess(w, r, RouteProfile+"?message="+url.QueryEscape(msgProfileSaved))
	}
}

func parseProfileForm(r *http.Request) (apiclient.ProfileUpdate, map[string]string) {
	fields := map[string]string{}
	update := apiclient.ProfileUpdate{}

	if email := strings.TrimSpace(r.FormValue("email")); email != "" {
		update.Email = utils.Ptr(email)
	}
	update.District = utils.Ptr(strings.TrimSpace(r.FormValue("district")))

	prefs := users.NotificationPreferences{
		Email:       r.FormValue("notify_email") == "on",
		SMS:         r.FormValue("notify_sms") == "on",
		Push:        r.FormValue("notify_push") == "on",
		MinSeverity: r.FormValue("min_severity"),
	}
	if prefs.MinSeverity != "" && !validSeverity(prefs.MinSeverity) {
		fields["min_severity"] = "unknown severity"
	}
	update.NotificationPreferences = &prefs

	lat, lon := strings.TrimSpace(r.FormValue("latitude")), strings.TrimSpace(r.FormValue("longitude"))
	if lat != "" || lon != "" {
		loc, err := parseLocation(lat, lon)
		if err != nil {
			fields["location"] = err.Error()
		} else {
			update.Location = loc
		}
	}
	return update, fields
}

func parseLocation(lat, lon string) (*users.Location, error) {
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil || latitude < -90 || latitude > 90 {
		return nil, errInvalidCoordinates
	}
	longitude, err := strconv.ParseFloat(lon, 64)
	if err != nil || longitude < -180 || longitude > 180 {
		return nil, errInvalidCoordinates
	}
	return &users.Location{Latitude: latitude, Longitude: longitude}, nil
}

var errInvalidCoordinates = errors.New("latitude must be between -90 and 90, longitude between -180 and 180")

func validSeverity(v string) bool {
	return slices.Contains(severities, v)
}

func (s *Server) renderProfileError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	data := s.pageDataFor(r, storeFrom(r).Snapshot(), "Your profile", func(p *pageData) {
		p.Error = apperrors.UserMessage(err)
		p.Severities = severities
	})
	var verr *apperrors.ValidationError
	if apperrors.As(err, &verr) {
		status = http.StatusUnprocessableEntity
		for name, msg := range verr.Fields {
			data.Fields[name] = msg
		}
	}
	s.render(w, status, "profile.html", data)
}
