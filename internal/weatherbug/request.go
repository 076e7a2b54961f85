package weatherbug

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"github.com/i474232898/weatherbug-uploader/internal/weather"
)

// DefaultServerURL is the live-data endpoint of the backyard station network.
const DefaultServerURL = "http://data.backyard2.weatherbug.com/data/livedata.aspx"

// Version is reported in the softwaretype parameter and the User-Agent.
var Version = "0.7"

// SoftwareType identifies this uploader to the remote service.
func SoftwareType() string {
	return "wbug-uploader_" + Version
}

// dateFormat is the mysql-style dateutc layout.
const dateFormat = "2006-01-02 15:04:05"

// Credentials identify the publishing station. The password travels as the
// Key query parameter.
type Credentials struct {
	PublisherID   string
	StationNumber string
	Password      string
}

var errInvalidEndpoint = errors.New("invalid endpoint")

var keyPattern = regexp.MustCompile(`Key=[^&]*`)

// Request is one fully rendered upload. It carries the credentials and must
// only be logged through Redacted.
type Request struct {
	endpoint *url.URL
	values   url.Values
}

// URL returns the absolute request URL including the password.
func (r Request) URL() string {
	u := *r.endpoint
	u.RawQuery = r.values.Encode()
	return u.String()
}

// Redacted returns the request URL with the password masked.
func (r Request) Redacted() string {
	return Redact(r.URL())
}

// Values returns a copy of the query parameters.
func (r Request) Values() url.Values {
	out := make(url.Values, len(r.values))
	for k, v := range r.values {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Redact masks the Key parameter of a rendered URL or error message.
func Redact(s string) string {
	return keyPattern.ReplaceAllString(s, "Key=XXX")
}

// BuildRequest renders an enriched, US-unit record into an upload request.
// Fields absent or null in the record are left out entirely; the remote end
// handles blank values unpredictably.
func BuildRequest(rec weather.Record, creds Credentials, endpoint string) (Request, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", errInvalidEndpoint, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Request{}, fmt.Errorf("%w: %q is not absolute", errInvalidEndpoint, endpoint)
	}

	values := url.Values{}
	values.Set("action", "live")
	values.Set("softwaretype", SoftwareType())
	values.Set("ID", creds.PublisherID)
	values.Set("Num", creds.StationNumber)
	values.Set("Key", creds.Password)
	values.Set("dateutc", rec.Time().Format(dateFormat))

	for _, f := range FieldMapping {
		v, ok := rec.Get(f.Source)
		if !ok || !v.Valid {
			continue
		}
		values.Set(f.Target, fmt.Sprintf(f.Format, v.Float))
	}

	return Request{endpoint: u, values: values}, nil
}
