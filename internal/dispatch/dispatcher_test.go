package dispatch

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/fxmediacalicut-cloud/telegrambot/internal/chat"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/delivery"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/registry"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/sessions"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/wizard"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/config"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/db/models"
	pkgerrors "github.com/fxmediacalicut-cloud/telegrambot/pkg/errors"
)

const (
	adminID = int64(999)
	buyerID = int64(42)
)

type sentMessage struct {
	chatID int64
	text   string
	rows   [][]chat.Button
}

type sentPhoto struct {
	chatID  int64
	caption string
	rows    [][]chat.Button
}

type fakeSender struct {
	mu       sync.Mutex
	messages []sentMessage
	photos   []sentPhoto
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeSender) SendMessageWithButtons(ctx context.Context, chatID int64, text string, rows [][]chat.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{chatID: chatID, text: text, rows: rows})
	return nil
}

func (f *fakeSender) SendPhoto(ctx context.Context, chatID int64, photo io.Reader, caption string, rows [][]chat.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, sentPhoto{chatID: chatID, caption: caption, rows: rows})
	return nil
}

func (f *fakeSender) messagesTo(chatID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.messages {
		if m.chatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSender) lastMessageTo(t *testing.T, chatID int64) sentMessage {
	t.Helper()
	msgs := f.messagesTo(chatID)
	if len(msgs) == 0 {
		t.Fatalf("expected a message to %d, got none", chatID)
	}
	return msgs[len(msgs)-1]
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]*models.Product
	panicOn  string
}

func newFakeCatalog(products ...models.Product) *fakeCatalog {
	cat := &fakeCatalog{products: make(map[string]*models.Product)}
	for i := range products {
		p := products[i]
		cat.products[p.Code] = &p
	}
	return cat
}

func (f *fakeCatalog) Get(ctx context.Context, code string) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == "Get" {
		panic("catalog exploded")
	}
	if p, ok := f.products[code]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
}

func (f *fakeCatalog) List(ctx context.Context) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == "List" {
		panic("catalog exploded")
	}
	codes := make([]string, 0, len(f.products))
	for code := range f.products {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	out := make([]models.Product, 0, len(codes))
	for _, code := range codes {
		out = append(out, *f.products[code])
	}
	return out, nil
}

func (f *fakeCatalog) Upsert(ctx context.Context, product *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *product
	f.products[product.Code] = &clone
	return nil
}

func (f *fakeCatalog) Remove(ctx context.Context, code string) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[code]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	delete(f.products, code)
	clone := *p
	return &clone, nil
}

func (f *fakeCatalog) NextFreeCode(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 1; ; i++ {
		code := "p" + strconv.Itoa(i)
		if _, taken := f.products[code]; !taken {
			return code, nil
		}
	}
}

type fakeFetcher struct {
	content string
	fail    bool
}

func (f *fakeFetcher) FetchFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if f.fail {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "file gateway down")
	}
	return io.NopCloser(strings.NewReader(f.content)), nil
}

// memorySaver is both the dispatcher's saver and the notifier's opener.
type memorySaver struct {
	mu    sync.Mutex
	seq   int
	blobs map[string][]byte
}

func newMemorySaver() *memorySaver {
	return &memorySaver{blobs: make(map[string][]byte)}
}

func (m *memorySaver) Save(ctx context.Context, userID int64, r io.Reader) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ref := "blob-" + strconv.Itoa(m.seq)
	m.blobs[ref] = content
	return ref, nil
}

func (m *memorySaver) Open(ref string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.blobs[ref]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "artifact not found")
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

type fakeRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeRecorder) Submitted(txnID string, userID int64, username, productName string) error {
	return f.record("submitted " + txnID)
}

func (f *fakeRecorder) Approved(txnID string, userID int64, productName string) error {
	return f.record("approved " + txnID)
}

func (f *fakeRecorder) Rejected(txnID string, userID int64, reason string) error {
	return f.record("rejected " + txnID + " " + reason)
}

func (f *fakeRecorder) record(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	return nil
}

type harness struct {
	dispatcher *Dispatcher
	sender     *fakeSender
	catalog    *fakeCatalog
	recorder   *fakeRecorder
	reg        *registry.Service
}

func newHarness(t *testing.T, cat *fakeCatalog) *harness {
	t.Helper()
	sender := &fakeSender{}
	saver := newMemorySaver()
	recorder := &fakeRecorder{}

	selector, err := sessions.NewSelector(cat)
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	wiz, err := wizard.NewManager(cat)
	if err != nil {
		t.Fatalf("new wizard: %v", err)
	}
	notifier, err := delivery.NewNotifier(sender, saver, config.PaymentConfig{
		UPIID:     "store@upi",
		PayeeName: "Store",
		Currency:  "INR",
	}, adminID)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	reg, err := registry.NewService(registry.Params{
		AdminID:  adminID,
		Catalog:  cat,
		Recorder: recorder,
		Notifier: notifier,
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	dispatcher, err := New(Params{
		AdminID:   adminID,
		QueueSize: 8,
		Catalog:   cat,
		Selector:  selector,
		Registry:  reg,
		Wizard:    wiz,
		Notifier:  notifier,
		Artifacts: saver,
		Files:     &fakeFetcher{content: "jpeg-bytes"},
		Sender:    sender,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return &harness{dispatcher: dispatcher, sender: sender, catalog: cat, recorder: recorder, reg: reg}
}

func product(code, name string, price int) models.Product {
	return models.Product{Code: code, Name: name, Price: price, Access: "access-" + code}
}

func command(userID int64, name string) chat.Update {
	return chat.Update{Command: &chat.Command{UserID: userID, Username: "someone", Name: name}}
}

func callback(userID int64, data string) chat.Update {
	return chat.Update{Callback: &chat.Callback{UserID: userID, Username: "someone", Data: data}}
}

func photoFrom(userID int64) chat.Update {
	return chat.Update{Photo: &chat.Photo{UserID: userID, Username: "buyer", FileID: "file-1"}}
}

func textFrom(userID int64, body string) chat.Update {
	return chat.Update{Text: &chat.Text{UserID: userID, Username: "someone", Body: body}}
}

// submit drives select-then-upload and returns the transaction id parsed from
// the admin's review prompt buttons.
func (h *harness) submit(t *testing.T, code string) string {
	t.Helper()
	ctx := context.Background()
	h.dispatcher.process(ctx, callback(buyerID, code))
	h.dispatcher.process(ctx, photoFrom(buyerID))

	h.sender.mu.Lock()
	defer h.sender.mu.Unlock()
	if len(h.sender.photos) == 0 {
		t.Fatalf("expected a review prompt photo to the admin")
	}
	prompt := h.sender.photos[len(h.sender.photos)-1]
	if prompt.chatID != adminID {
		t.Fatalf("review prompt went to %d, want admin %d", prompt.chatID, adminID)
	}
	for _, row := range prompt.rows {
		for _, btn := range row {
			if strings.HasPrefix(btn.Data, "approve_") {
				return strings.TrimPrefix(btn.Data, "approve_")
			}
		}
	}
	t.Fatalf("review prompt carries no approve button: %+v", prompt.rows)
	return ""
}

func TestStartListsProducts(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100), product("p2", "Pro", 250)))
	h.dispatcher.process(context.Background(), command(buyerID, "start"))

	msg := h.sender.lastMessageTo(t, buyerID)
	if len(msg.rows) != 2 {
		t.Fatalf("expected 2 button rows, got %d", len(msg.rows))
	}
	if msg.rows[0][0].Data != "p1" || msg.rows[1][0].Data != "p2" {
		t.Fatalf("button payloads are not product codes: %+v", msg.rows)
	}
}

func TestStartWithEmptyCatalog(t *testing.T) {
	h := newHarness(t, newFakeCatalog())
	h.dispatcher.process(context.Background(), command(buyerID, "start"))

	msg := h.sender.lastMessageTo(t, buyerID)
	if !strings.Contains(msg.text, "No products") {
		t.Fatalf("unexpected reply: %q", msg.text)
	}
}

func TestSelectionSendsPaymentInstructions(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	h.dispatcher.process(context.Background(), callback(buyerID, "p1"))

	msg := h.sender.lastMessageTo(t, buyerID)
	if !strings.Contains(msg.text, "store@upi") || !strings.Contains(msg.text, "upi://pay?") {
		t.Fatalf("payment instructions missing UPI details: %q", msg.text)
	}
}

func TestSelectionOfUnknownProduct(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	h.dispatcher.process(context.Background(), callback(buyerID, "p9"))

	msg := h.sender.lastMessageTo(t, buyerID)
	if !strings.Contains(msg.text, "no longer available") {
		t.Fatalf("unexpected reply: %q", msg.text)
	}
}

func TestPhotoWithoutSelection(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	h.dispatcher.process(context.Background(), photoFrom(buyerID))

	msg := h.sender.lastMessageTo(t, buyerID)
	if !strings.Contains(msg.text, "select a product first") {
		t.Fatalf("unexpected reply: %q", msg.text)
	}
}

func TestSubmissionNotifiesBuyerAndAdmin(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	txnID := h.submit(t, "p1")
	if txnID == "" {
		t.Fatalf("expected a transaction id")
	}

	var receipt bool
	for _, msg := range h.sender.messagesTo(buyerID) {
		if strings.Contains(msg.text, "Screenshot received") {
			receipt = true
		}
	}
	if !receipt {
		t.Fatalf("buyer never received a submission receipt")
	}
}

func TestApproveDeliversAccess(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	txnID := h.submit(t, "p1")

	h.dispatcher.process(context.Background(), callback(adminID, "approve_"+txnID))

	buyerMsg := h.sender.lastMessageTo(t, buyerID)
	if !strings.Contains(buyerMsg.text, "access-p1") {
		t.Fatalf("buyer did not receive the access payload: %q", buyerMsg.text)
	}
	adminMsg := h.sender.lastMessageTo(t, adminID)
	if !strings.Contains(adminMsg.text, "Approved Txn "+txnID) {
		t.Fatalf("admin confirmation missing: %q", adminMsg.text)
	}
	if _, err := h.reg.Approve(context.Background(), txnID, adminID); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("approved transaction should be purged, got err=%v", err)
	}
}

func TestApproveFromOutsiderIsIgnored(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	txnID := h.submit(t, "p1")
	before := len(h.sender.messagesTo(buyerID))

	h.dispatcher.process(context.Background(), callback(buyerID, "approve_"+txnID))

	if got := len(h.sender.messagesTo(buyerID)); got != before {
		t.Fatalf("outsider approve produced %d new messages", got-before)
	}
	if got := h.reg.Pending(context.Background()); len(got) != 1 {
		t.Fatalf("transaction should still be pending, have %d", len(got))
	}
}

func TestApproveUnknownTransaction(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	h.dispatcher.process(context.Background(), callback(adminID, "approve_nope"))

	msg := h.sender.lastMessageTo(t, adminID)
	if !strings.Contains(msg.text, "Transaction not found") {
		t.Fatalf("unexpected reply: %q", msg.text)
	}
}

func TestRejectFlowDeliversReason(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	txnID := h.submit(t, "p1")

	ctx := context.Background()
	h.dispatcher.process(ctx, callback(adminID, "reject_"+txnID))
	prompt := h.sender.lastMessageTo(t, adminID)
	if !strings.Contains(prompt.text, txnID) {
		t.Fatalf("reason prompt missing transaction id: %q", prompt.text)
	}

	h.dispatcher.process(ctx, textFrom(adminID, "Blurry screenshot"))

	buyerMsg := h.sender.lastMessageTo(t, buyerID)
	if !strings.Contains(buyerMsg.text, "Blurry screenshot") || !strings.Contains(buyerMsg.text, txnID) {
		t.Fatalf("rejection notice incomplete: %q", buyerMsg.text)
	}
	if got := h.reg.Pending(ctx); len(got) != 0 {
		t.Fatalf("rejected transaction should be purged, have %d", len(got))
	}
}

func TestAdminTextWithoutSlotOrWizardIsIgnored(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	h.dispatcher.process(context.Background(), textFrom(adminID, "hello there"))

	if msgs := h.sender.messagesTo(adminID); len(msgs) != 0 {
		t.Fatalf("stray admin text should be ignored, got %+v", msgs)
	}
}

func TestBuyerTextIsIgnored(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	h.dispatcher.process(context.Background(), textFrom(buyerID, "is anyone there"))

	if msgs := h.sender.messagesTo(buyerID); len(msgs) != 0 {
		t.Fatalf("buyer text should be ignored, got %+v", msgs)
	}
}

func TestWizardFlowAddsProduct(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	ctx := context.Background()

	h.dispatcher.process(ctx, command(adminID, "addproduct"))
	for _, input := range []string{"-", "Deluxe", "500", "deluxe-link", "skip"} {
		h.dispatcher.process(ctx, textFrom(adminID, input))
	}

	saved, err := h.catalog.Get(ctx, "p2")
	if err != nil {
		t.Fatalf("wizard did not save the product: %v", err)
	}
	if saved.Name != "Deluxe" || saved.Price != 500 {
		t.Fatalf("saved product mismatch: %+v", saved)
	}
	msg := h.sender.lastMessageTo(t, adminID)
	if !strings.Contains(msg.text, "saved") {
		t.Fatalf("expected completion reply, got %q", msg.text)
	}
}

func TestWizardCommandsRequireAdmin(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	h.dispatcher.process(context.Background(), command(buyerID, "addproduct"))

	if msgs := h.sender.messagesTo(buyerID); len(msgs) != 0 {
		t.Fatalf("outsider addproduct should be ignored, got %+v", msgs)
	}
}

func TestCancelDiscardsWizard(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	ctx := context.Background()

	h.dispatcher.process(ctx, command(adminID, "addproduct"))
	h.dispatcher.process(ctx, command(adminID, "cancel"))
	h.dispatcher.process(ctx, textFrom(adminID, "p5"))

	msg := h.sender.lastMessageTo(t, adminID)
	if !strings.Contains(msg.text, "cancelled") {
		t.Fatalf("cancel confirmation missing, last reply %q", msg.text)
	}
}

func TestRemoveProductCallback(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	ctx := context.Background()

	h.dispatcher.process(ctx, callback(adminID, "remove_p1"))
	if _, err := h.catalog.Get(ctx, "p1"); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("product should be removed, got err=%v", err)
	}

	h.dispatcher.process(ctx, callback(buyerID, "remove_p1"))
	if msgs := h.sender.messagesTo(buyerID); len(msgs) != 0 {
		t.Fatalf("outsider removal should be ignored, got %+v", msgs)
	}
}

func TestPendingCommandListsTransactions(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	txnID := h.submit(t, "p1")

	h.dispatcher.process(context.Background(), command(adminID, "pending"))

	msg := h.sender.lastMessageTo(t, adminID)
	if !strings.Contains(msg.text, txnID) {
		t.Fatalf("pending report missing transaction %s: %q", txnID, msg.text)
	}
}

func TestPanicIsRecoveredWithGenericReply(t *testing.T) {
	cat := newFakeCatalog(product("p1", "Starter", 100))
	cat.panicOn = "List"
	h := newHarness(t, cat)

	h.dispatcher.process(context.Background(), command(buyerID, "start"))

	msg := h.sender.lastMessageTo(t, buyerID)
	if !strings.Contains(msg.text, "error occurred") {
		t.Fatalf("expected generic failure reply, got %q", msg.text)
	}
}

func TestEnqueueDropsWhenSaturated(t *testing.T) {
	h := newHarness(t, newFakeCatalog(product("p1", "Starter", 100)))
	h.dispatcher.queue = make(chan chat.Update, 1)

	if !h.dispatcher.Enqueue(command(buyerID, "start")) {
		t.Fatalf("first enqueue should succeed")
	}
	if h.dispatcher.Enqueue(command(buyerID, "start")) {
		t.Fatalf("second enqueue should report a drop")
	}
}
