package portal

import (
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/resultbot/pkg/browser"
	"github.com/entrhq/resultbot/pkg/config"
)

const testBaseURL = "https://portal.test/"

func testSite() config.SiteConfig {
	site := config.DefaultConfig().Site
	site.BaseURL = testBaseURL
	site.CookieDomain = "portal.test"
	site.NavigationTimeout = time.Second
	site.LoginTimeout = 50 * time.Millisecond
	site.ResultWait = 300 * time.Millisecond
	site.RenderTimeout = 20 * time.Millisecond
	site.SettleDelay = time.Millisecond
	return site
}

// fakeServer is the portal's server-side state, shared by every tab.
type fakeServer struct {
	mu        sync.Mutex
	site      config.SiteConfig
	users     map[string]string
	sessions  map[string]bool
	published map[string]bool

	homeTimeout    bool
	markerAlways   bool
	tabNeverOpens  bool
	renderTimeout  bool
	noSemesterCtrl bool
	recordAndTab   bool
	screenshotErr  error
	pdfErr         error
	issued         int
}

func newFakeServer(site config.SiteConfig) *fakeServer {
	return &fakeServer{
		site:      site,
		users:     map[string]string{"2K21CSUN01": "hunter2"},
		sessions:  map[string]bool{},
		published: map[string]bool{"01": true, "02": true},
	}
}

func (s *fakeServer) issue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	token := fmt.Sprintf("sess-%d", s.issued)
	s.sessions[token] = true
	return token
}

func (s *fakeServer) valid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[token]
}

// fakePortal is one tab on the fake portal.
type fakePortal struct {
	browser.Page

	srv *fakeServer

	mu            sync.Mutex
	url           string
	fields        map[string]string
	cookies       map[string]string
	loggedIn      bool
	loginMessage  string
	resultMessage string
	selected      string
	selectCalls   []string
	gotos         []string
	watchers      []chan browser.Page
	lastTab       *fakeTab
}

func newFakePortal(srv *fakeServer) *fakePortal {
	return &fakePortal{
		srv:     srv,
		url:     "about:blank",
		fields:  map[string]string{},
		cookies: map[string]string{},
	}
}

func (p *fakePortal) Goto(u string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gotos = append(p.gotos, u)
	site := p.srv.site
	if u == site.HomeURL() && p.srv.homeTimeout {
		return fmt.Errorf("navigation to %s failed: %w", u, browser.ErrTimeout)
	}
	if u == site.ResultURL() && !p.srv.valid(p.cookies[site.CookieName]) {
		// Unauthenticated visitors are bounced to the login page
		p.url = "https://portal.test/Login.aspx?ReturnUrl=result"
		return nil
	}
	p.url = u
	return nil
}

func (p *fakePortal) Fill(selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fields[selector] = value
	return nil
}

func (p *fakePortal) Click(selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sel := p.srv.site.Selectors
	switch selector {
	case sel.Submit:
		user, pass := p.fields[sel.Username], p.fields[sel.Password]
		if want, ok := p.srv.users[user]; ok && want == pass {
			p.loggedIn = true
			p.loginMessage = ""
			p.cookies[p.srv.site.CookieName] = p.srv.issue()
		} else {
			p.loginMessage = p.srv.site.WrongCredentialsText
		}
	case sel.ViewResult:
		if !p.srv.published[p.selected] {
			p.resultMessage = "No Record Found for the selected semester"
			return nil
		}
		if p.srv.tabNeverOpens {
			return nil
		}
		tab := &fakeTab{
			html:          fmt.Sprintf(resultHTML, p.selected),
			renderTimeout: p.srv.renderTimeout,
			screenshotErr: p.srv.screenshotErr,
			pdfErr:        p.srv.pdfErr,
		}
		p.lastTab = tab
		watchers := append([]chan browser.Page(nil), p.watchers...)
		go func() {
			time.Sleep(20 * time.Millisecond)
			if p.srv.recordAndTab {
				// The portal shows the message and still opens an empty tab
				p.mu.Lock()
				p.resultMessage = "No Record Found"
				p.mu.Unlock()
			}
			for _, ch := range watchers {
				ch <- tab
			}
		}()
	default:
		return fmt.Errorf("no element matches %s", selector)
	}
	return nil
}

func (p *fakePortal) WaitVisible(selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector == p.srv.site.Selectors.LoginMarker && (p.loggedIn || p.srv.markerAlways) {
		return nil
	}
	return fmt.Errorf("wait for %s failed: %w", selector, browser.ErrTimeout)
}

func (p *fakePortal) Count(selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector == p.srv.site.Selectors.Semester && !p.srv.noSemesterCtrl && p.url == p.srv.site.ResultURL() {
		return 1, nil
	}
	return 0, nil
}

func (p *fakePortal) Text(selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch selector {
	case p.srv.site.Selectors.LoginMessage:
		return p.loginMessage, nil
	case p.srv.site.Selectors.ResultMessage:
		return p.resultMessage, nil
	}
	return "", nil
}

func (p *fakePortal) SelectOption(selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selectCalls = append(p.selectCalls, value)
	// Like the real control, unknown values select nothing
	if len(value) == 2 && value >= "01" && value <= "08" {
		p.selected = value
	}
	return nil
}

func (p *fakePortal) InputValue(selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected, nil
}

func (p *fakePortal) SetCookie(c browser.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies[c.Name] = c.Value
	return nil
}

func (p *fakePortal) Cookie(name string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.cookies[name]
	return v, ok, nil
}

func (p *fakePortal) WatchNewPages() (<-chan browser.Page, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan browser.Page, 4)
	p.watchers = append(p.watchers, ch)
	return ch, func() {}
}

func (p *fakePortal) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePortal) tab() *fakeTab {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTab
}

const resultHTML = `<html><head><title>Result</title><script>var x = 1;</script></head>
<body>
<h2>Semester %s Result</h2>
<table>
<tr><th>Subject</th><th>Marks</th></tr>
<tr><td>Data Structures</td><td> 78 </td></tr>
</table>
<style>.x{}</style>
</body></html>`

// fakeTab is a result tab.
type fakeTab struct {
	browser.Page

	mu            sync.Mutex
	html          string
	renderTimeout bool
	screenshotErr error
	pdfErr        error
	closed        bool
}

func (t *fakeTab) WaitDocumentComplete(timeout time.Duration) error {
	if t.renderTimeout {
		return fmt.Errorf("wait for document complete failed: %w", browser.ErrTimeout)
	}
	return nil
}

func (t *fakeTab) Screenshot() ([]byte, error) {
	if t.screenshotErr != nil {
		return nil, t.screenshotErr
	}
	return []byte("\x89PNG fake"), nil
}

func (t *fakeTab) PDF(opts browser.PDFOptions) ([]byte, error) {
	if t.pdfErr != nil {
		return nil, t.pdfErr
	}
	return []byte("%PDF-1.4 fake"), nil
}

func (t *fakeTab) Content() (string, error) { return t.html, nil }
func (t *fakeTab) Text(selector string) (string, error) { return "fallback", nil }

func (t *fakeTab) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTab) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// portalContext serves fresh tabs from one fake server.
type portalContext struct {
	srv  *fakeServer
	page *fakePortal
}

func (c *portalContext) Page() browser.Page { return c.page }

func (c *portalContext) Reset() error {
	c.page = newFakePortal(c.srv)
	return nil
}

func (c *portalContext) Close() error { return nil }

type portalFactory struct {
	srv *fakeServer
}

func (f *portalFactory) NewContext() (browser.Context, error) {
	return &portalContext{srv: f.srv, page: newFakePortal(f.srv)}, nil
}

func (f *portalFactory) Close() error { return nil }
