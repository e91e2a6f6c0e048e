package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// segmentPattern restricts usernames and project names to characters that are
// valid on GitHub Pages and safe to use as file path segments.
var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// CaptureRequest identifies one student project to preview.
type CaptureRequest struct {
	Year     int
	Username string
	Project  string
}

// ParseCaptureRequest builds a CaptureRequest from raw path parameters.
// Any missing field, a non-integer year or an unsafe segment yields ErrMalformedRequest.
func ParseCaptureRequest(year, username, project string) (CaptureRequest, error) {
	year = strings.TrimSpace(year)
	username = strings.TrimSpace(username)
	project = strings.TrimSpace(project)

	if year == "" || username == "" || project == "" {
		return CaptureRequest{}, fmt.Errorf("%w: year, username and project are required", ErrMalformedRequest)
	}
	y, err := strconv.Atoi(year)
	if err != nil || y <= 0 {
		return CaptureRequest{}, fmt.Errorf("%w: year %q is not a positive integer", ErrMalformedRequest, year)
	}
	if !validSegment(username) {
		return CaptureRequest{}, fmt.Errorf("%w: invalid username %q", ErrMalformedRequest, username)
	}
	if !validSegment(project) {
		return CaptureRequest{}, fmt.Errorf("%w: invalid project %q", ErrMalformedRequest, project)
	}

	return CaptureRequest{Year: y, Username: username, Project: project}, nil
}

func validSegment(s string) bool {
	if s == "." || s == ".." {
		return false
	}
	return segmentPattern.MatchString(s)
}

// ProjectURL returns the public GitHub Pages URL of the project.
// The year is a lookup dimension only and does not appear in the URL.
func (r CaptureRequest) ProjectURL() string {
	return "https://" + r.Username + ".github.io/" + r.Project
}

// Path returns the conventional "{year}/{username}/{project}" key of the request.
func (r CaptureRequest) Path() string {
	return strconv.Itoa(r.Year) + "/" + r.Username + "/" + r.Project
}

func (r CaptureRequest) String() string {
	return r.Path()
}
