package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body><h1>Test</h1></body></html>"))
	}))
	defer server.Close()

	result, err := URL(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, server.URL, result.URL)
	assert.Contains(t, result.HTML, "<h1>Test</h1>")
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestURL_InvalidURL(t *testing.T) {
	for _, raw := range []string{"not-a-valid-url", "ftp://example.com/file", "http://"} {
		_, err := URL(context.Background(), raw, nil)
		require.Error(t, err, raw)

		var fetchErr *Error
		assert.ErrorAs(t, err, &fetchErr)
		assert.Contains(t, err.Error(), "invalid URL")
	}
}

func TestURL_HTTPError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			result, err := URL(context.Background(), server.URL, nil)
			require.Error(t, err)
			require.NotNil(t, result)
			assert.Equal(t, tt.status, result.StatusCode)

			var fetchErr *Error
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, tt.retryable, fetchErr.Retryable)
		})
	}
}

func TestURL_RejectsNonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer server.Close()

	_, err := URL(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an HTML document")
}

func TestExtractPage(t *testing.T) {
	html := `
	<html>
		<head>
			<title>  Plain   Title </title>
			<meta property="og:title" content="Open Graph Title">
			<meta name="description" content="A short   description.">
		</head>
		<body>
			<nav>Navigation</nav>
			<main>
				<h1>Main Content</h1>
				<p>Paragraph text.</p>
				<script>var x = 1;</script>
			</main>
			<footer>Footer</footer>
		</body>
	</html>`

	page, err := ExtractPage(html)
	require.NoError(t, err)
	assert.Equal(t, "Open Graph Title", page.Title)
	assert.Equal(t, "A short description.", page.Description)
	assert.Equal(t, "Main Content Paragraph text.", page.Text)
}

func TestExtractPage_Fallbacks(t *testing.T) {
	html := `
	<html>
		<head>
			<title>Only Title</title>
			<meta property="og:description" content="From open graph">
		</head>
		<body><div>Body text</div><footer>Footer</footer></body>
	</html>`

	page, err := ExtractPage(html)
	require.NoError(t, err)
	assert.Equal(t, "Only Title", page.Title)
	assert.Equal(t, "From open graph", page.Description)
	assert.Equal(t, "Body text", page.Text)
}
