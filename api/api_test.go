package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/vquang/leaflib/config"
	"github.com/vquang/leaflib/cover"
	"github.com/vquang/leaflib/database"
	"github.com/vquang/leaflib/ebook"
	"github.com/vquang/leaflib/importer"
)

type APITestSuite struct {
	suite.Suite
	db     *database.Client
	ts     *httptest.Server
	client *http.Client
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (s *APITestSuite) SetupTest() {
	dataPath := s.T().TempDir()
	cfg := &config.Config{
		LibraryName: "Test Library",
		DataPath:    dataPath,
		Port:        5000,
		Theme:       "dark",
		ThemeColor:  "cyan",
		SessionKey:  "test_session_key",
	}

	db, err := database.NewInMemory()
	s.Require().NoError(err)
	s.db = db

	tool := ebook.NewTool()
	covers := cover.NewProcessor(cfg.CoversDir(), tool)
	s.Require().NoError(covers.EnsureDefault())
	imp := importer.New(db, covers, cfg.BooksDir(), cfg.ScratchDir())

	server, err := New(cfg, db, covers, tool, imp)
	s.Require().NoError(err)

	s.ts = httptest.NewServer(server.Handler())
	jar, err := cookiejar.New(nil)
	s.Require().NoError(err)
	s.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *APITestSuite) TearDownTest() {
	s.ts.Close()
	s.Require().NoError(s.db.Close())
}

func (s *APITestSuite) login(username, password string) {
	resp, err := s.client.PostForm(s.ts.URL+"/login", url.Values{
		"username": {username},
		"password": {password},
	})
	s.Require().NoError(err)
	resp.Body.Close()
	s.Require().Equal(http.StatusFound, resp.StatusCode)
	s.Require().Equal("/", resp.Header.Get("Location"))
}

func (s *APITestSuite) postJSON(path string, body any) map[string]any {
	data, err := json.Marshal(body)
	s.Require().NoError(err)
	resp, err := s.client.Post(s.ts.URL+path, "application/json", bytes.NewReader(data))
	s.Require().NoError(err)
	defer resp.Body.Close()

	var out map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (s *APITestSuite) addBook(title, author, format string) *database.Book {
	admin, err := s.db.GetUserByUsername(context.Background(), database.AdminUsername)
	s.Require().NoError(err)
	book := &database.Book{
		Filename: title + "." + format,
		Title:    title,
		Author:   author,
		Format:   format,
		UserID:   admin.ID,
	}
	s.Require().NoError(s.db.CreateBook(context.Background(), book))
	return book
}

func (s *APITestSuite) TestAnonymousRedirectsToLogin() {
	resp, err := s.client.Get(s.ts.URL + "/")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/login", resp.Header.Get("Location"))
}

func (s *APITestSuite) TestLoginWrongPassword() {
	resp, err := s.client.PostForm(s.ts.URL+"/login", url.Values{
		"username": {database.AdminUsername},
		"password": {"wrong"},
	})
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/login", resp.Header.Get("Location"))
}

func (s *APITestSuite) TestIndexAfterLogin() {
	s.login(database.AdminUsername, "password")
	s.addBook("Số Đỏ", "Vũ Trọng Phụng", "epub")

	resp, err := s.client.Get(s.ts.URL + "/")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	s.Require().NoError(err)
	s.Contains(buf.String(), "Số Đỏ")
	s.Contains(buf.String(), "Test Library")
}

func (s *APITestSuite) TestToggleFavoriteRoundTrip() {
	s.login(database.AdminUsername, "password")
	book := s.addBook("Số Đỏ", "Vũ Trọng Phụng", "epub")
	path := "/toggle_favorite/" + strconv.FormatUint(uint64(book.ID), 10)

	out := s.postJSON(path, nil)
	s.Equal(true, out["success"])
	s.Equal(true, out["favorited"])

	out = s.postJSON(path, nil)
	s.Equal(true, out["success"])
	s.Equal(false, out["favorited"])
}

func (s *APITestSuite) TestRateBook() {
	s.login(database.AdminUsername, "password")
	book := s.addBook("Số Đỏ", "Vũ Trọng Phụng", "epub")

	out := s.postJSON("/rate_book/"+strconv.FormatUint(uint64(book.ID), 10), map[string]int{"rating": 4})
	s.Equal(true, out["success"])

	got, err := s.db.GetBook(context.Background(), book.ID)
	s.Require().NoError(err)
	s.Equal(4, got.Rating)
}

func (s *APITestSuite) TestGuestForbiddenByDefault() {
	ctx := context.Background()
	s.login(database.GuestUsername, "")

	guest, err := s.db.GetUserByUsername(ctx, database.GuestUsername)
	s.Require().NoError(err)
	book := &database.Book{
		Filename: "so_do.epub",
		Title:    "Số Đỏ",
		Author:   "Vũ Trọng Phụng",
		Format:   "epub",
		UserID:   guest.ID,
	}
	s.Require().NoError(s.db.CreateBook(ctx, book))

	resp, err := s.client.Post(
		s.ts.URL+"/toggle_favorite/"+strconv.FormatUint(uint64(book.ID), 10),
		"application/json", nil,
	)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *APITestSuite) TestAdminRoutesRequireAdmin() {
	ctx := context.Background()
	_, err := s.db.CreateUser(ctx, "mai", "secret123")
	s.Require().NoError(err)
	s.login("mai", "secret123")

	resp, err := s.client.Get(s.ts.URL + "/manage_users")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *APITestSuite) TestIndexShowsOwnerForAdmin() {
	ctx := context.Background()
	s.login(database.AdminUsername, "password")

	owner, err := s.db.CreateUser(ctx, "mai", "secret123")
	s.Require().NoError(err)
	book := &database.Book{
		Filename: "so_do.epub",
		Title:    "Số Đỏ",
		Author:   "Vũ Trọng Phụng",
		Format:   "epub",
		UserID:   owner.ID,
	}
	s.Require().NoError(s.db.CreateBook(ctx, book))

	resp, err := s.client.Get(s.ts.URL + "/")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	s.Require().NoError(err)
	s.Contains(buf.String(), "card-owner")
	s.Contains(buf.String(), "mai")
}

func (s *APITestSuite) TestBrowseRejectsSiblingOfHome() {
	s.login(database.AdminUsername, "password")
	home, err := os.UserHomeDir()
	s.Require().NoError(err)

	// A sibling directory sharing the home prefix must fall back to home.
	resp, err := s.client.Get(s.ts.URL + "/api/browse?path=" + url.QueryEscape(home+"2"))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var out map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	s.Equal(home, out["path"])
}

func (s *APITestSuite) TestReaderSettingsRoundTrip() {
	s.login(database.AdminUsername, "password")
	book := s.addBook("Số Đỏ", "Vũ Trọng Phụng", "epub")

	blob := `{"fontSize":120}`
	out := s.postJSON("/save_settings/"+strconv.FormatUint(uint64(book.ID), 10), map[string]string{"settings": blob})
	s.Equal(true, out["success"])

	admin, err := s.db.GetUserByUsername(context.Background(), database.AdminUsername)
	s.Require().NoError(err)
	settings, err := s.db.ReaderSettings(context.Background(), admin.ID, book.ID)
	s.Require().NoError(err)
	s.Equal(blob, settings)
}

func (s *APITestSuite) TestCreateListAndToggle() {
	s.login(database.AdminUsername, "password")
	book := s.addBook("Số Đỏ", "Vũ Trọng Phụng", "epub")

	out := s.postJSON("/lists/create", map[string]string{"name": "Đọc sau"})
	s.Require().Equal(true, out["success"])
	listID := uint(out["id"].(float64))

	out = s.postJSON("/api/lists/toggle_book", map[string]uint{
		"list_id": listID,
		"book_id": book.ID,
	})
	s.Equal(true, out["success"])
	s.Equal(true, out["on_list"])
}
