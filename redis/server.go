package redis

import (
	"io"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
	"github.com/tidwall/redcon"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	filestream "github.com/XiXi-2024/xixi-filestream"
	"github.com/XiXi-2024/xixi-filestream/fio"
)

const (
	// MaxReadSize 单次 READ 命令允许读取的最大字节数
	MaxReadSize = 1 << 20
	hashChunk   = 64 << 10
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrWrongArgs      = errors.New("wrong number of arguments")
	ErrNoStream       = errors.New("no stream is open on this connection")
	ErrSyntax         = errors.New("syntax error")
)

// Server 基于 redcon 的 RESP 服务 每个连接至多持有一个 Stream
// 文件路径都解析到 dir 之下
type Server struct {
	dir     string
	options filestream.Options
	logger  *zap.Logger
	srv     *redcon.Server
}

// 连接上下文
type session struct {
	stream *filestream.Stream
}

func (sess *session) close() error {
	if sess.stream == nil {
		return nil
	}
	err := sess.stream.Close()
	sess.stream = nil
	return err
}

// NewServer 创建服务 多个连接共享同一个 Dispatcher
func NewServer(addr, dir string, options filestream.Options) *Server {
	if options.Dispatcher == nil {
		options.Dispatcher = fio.NewDispatcher(options.MaxConcurrentIO)
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	svr := &Server{
		dir:     dir,
		options: options,
		logger:  options.Logger,
	}
	svr.srv = redcon.NewServer(addr, svr.handle, svr.accept, svr.closed)
	return svr
}

// ListenAndServe 监听地址并处理连接
func (svr *Server) ListenAndServe() error {
	return svr.srv.ListenAndServe()
}

// Serve 在给定的 listener 上处理连接
func (svr *Server) Serve(ln net.Listener) error {
	return svr.srv.Serve(ln)
}

func (svr *Server) Close() error {
	return svr.srv.Close()
}

func (svr *Server) accept(conn redcon.Conn) bool {
	conn.SetContext(&session{})
	svr.logger.Debug("accept", zap.String("remote", conn.RemoteAddr()))
	return true
}

func (svr *Server) closed(conn redcon.Conn, err error) {
	if sess, ok := conn.Context().(*session); ok {
		if cerr := sess.close(); cerr != nil {
			svr.logger.Warn("close stream", zap.String("remote", conn.RemoteAddr()), zap.Error(cerr))
		}
	}
	svr.logger.Debug("closed", zap.String("remote", conn.RemoteAddr()), zap.Error(err))
}

func (svr *Server) handle(conn redcon.Conn, cmd redcon.Command) {
	sess, _ := conn.Context().(*session)
	if sess == nil {
		sess = &session{}
		conn.SetContext(sess)
	}

	if strings.ToLower(string(cmd.Args[0])) == "quit" {
		_ = sess.close()
		conn.WriteString("OK")
		_ = conn.Close()
		return
	}

	reply, err := svr.exec(sess, cmd.Args)
	if err != nil {
		conn.WriteError("ERR " + err.Error())
		return
	}
	switch r := reply.(type) {
	case nil:
		conn.WriteNull()
	case string:
		conn.WriteString(r)
	case int64:
		conn.WriteInt64(r)
	case []byte:
		conn.WriteBulk(r)
	case *bytebufferpool.ByteBuffer:
		// WriteBulk 会复制数据, 写完即可归还
		conn.WriteBulk(r.B)
		bytebufferpool.Put(r)
	}
}

// exec 执行一条命令 返回 nil、string、int64、[]byte 或 *bytebufferpool.ByteBuffer
func (svr *Server) exec(sess *session, args [][]byte) (interface{}, error) {
	name := strings.ToLower(string(args[0]))
	args = args[1:]

	switch name {
	case "ping":
		if len(args) == 1 {
			return args[0], nil
		}
		return "PONG", nil
	case "open":
		return svr.open(sess, args)
	}

	fn, ok := streamCommands[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCommand, "'%s'", name)
	}
	if sess.stream == nil {
		return nil, ErrNoStream
	}
	return fn(sess, args)
}

// OPEN path mode access
func (svr *Server) open(sess *session, args [][]byte) (interface{}, error) {
	if len(args) != 3 {
		return nil, ErrWrongArgs
	}
	mode, ok := modes[strings.ToLower(string(args[1]))]
	if !ok {
		return nil, errors.Wrapf(ErrSyntax, "mode %q", args[1])
	}
	access, ok := accesses[strings.ToLower(string(args[2]))]
	if !ok {
		return nil, errors.Wrapf(ErrSyntax, "access %q", args[2])
	}

	// 限制在服务目录之内
	path := filepath.Join(svr.dir, filepath.Clean("/"+string(args[0])))
	s, err := filestream.OpenFile(path, mode, access, svr.options)
	if err != nil {
		return nil, err
	}
	if err := sess.close(); err != nil {
		svr.logger.Warn("close previous stream", zap.Error(err))
	}
	sess.stream = s
	return "OK", nil
}

var modes = map[string]filestream.FileMode{
	"createnew":    filestream.ModeCreateNew,
	"create":       filestream.ModeCreate,
	"open":         filestream.ModeOpen,
	"openorcreate": filestream.ModeOpenOrCreate,
	"truncate":     filestream.ModeTruncate,
	"append":       filestream.ModeAppend,
}

var accesses = map[string]filestream.FileAccess{
	"r":  filestream.AccessRead,
	"w":  filestream.AccessWrite,
	"rw": filestream.AccessReadWrite,
}

var whences = map[string]int{
	"start":   io.SeekStart,
	"current": io.SeekCurrent,
	"end":     io.SeekEnd,
}

type commandFunc func(sess *session, args [][]byte) (interface{}, error)

var streamCommands = map[string]commandFunc{
	"seek":     seek,
	"read":     read,
	"write":    write,
	"pos":      position,
	"len":      length,
	"truncate": truncate,
	"sync":     sync,
	"hash":     hash,
	"lock":     lock,
	"unlock":   unlock,
	"close":    closeStream,
}

// SEEK offset [whence]
func seek(sess *session, args [][]byte) (interface{}, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, ErrWrongArgs
	}
	offset, err := parseInt(args[0])
	if err != nil {
		return nil, err
	}
	whence := io.SeekStart
	if len(args) == 2 {
		w, ok := whences[strings.ToLower(string(args[1]))]
		if !ok {
			return nil, errors.Wrapf(ErrSyntax, "whence %q", args[1])
		}
		whence = w
	}
	return sess.stream.Seek(offset, whence)
}

// READ n 文件末尾返回 null
func read(sess *session, args [][]byte) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongArgs
	}
	n, err := parseInt(args[0])
	if err != nil {
		return nil, err
	}
	if n < 0 || n > MaxReadSize {
		return nil, errors.Wrapf(ErrSyntax, "read size %d", n)
	}
	buf := bytebufferpool.Get()
	if cap(buf.B) < int(n) {
		buf.B = make([]byte, n)
	}
	buf.B = buf.B[:n]
	read, err := sess.stream.Read(buf.B)
	if err != nil {
		bytebufferpool.Put(buf)
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	buf.B = buf.B[:read]
	return buf, nil
}

// WRITE data
func write(sess *session, args [][]byte) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongArgs
	}
	n, err := sess.stream.Write(args[0])
	return int64(n), err
}

func position(sess *session, args [][]byte) (interface{}, error) {
	if len(args) != 0 {
		return nil, ErrWrongArgs
	}
	return sess.stream.Position(), nil
}

func length(sess *session, args [][]byte) (interface{}, error) {
	if len(args) != 0 {
		return nil, ErrWrongArgs
	}
	return sess.stream.Length()
}

// TRUNCATE n
func truncate(sess *session, args [][]byte) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongArgs
	}
	n, err := parseInt(args[0])
	if err != nil {
		return nil, err
	}
	if err := sess.stream.SetLength(n); err != nil {
		return nil, err
	}
	return "OK", nil
}

func sync(sess *session, args [][]byte) (interface{}, error) {
	if len(args) != 0 {
		return nil, ErrWrongArgs
	}
	if err := sess.stream.Sync(); err != nil {
		return nil, err
	}
	return "OK", nil
}

// HASH 整个文件内容的 xxhash64, 不改变逻辑位置
func hash(sess *session, args [][]byte) (interface{}, error) {
	if len(args) != 0 {
		return nil, ErrWrongArgs
	}
	size, err := sess.stream.Length()
	if err != nil {
		return nil, err
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if cap(buf.B) < hashChunk {
		buf.B = make([]byte, hashChunk)
	}
	buf.B = buf.B[:hashChunk]

	digest := xxhash.New()
	for off := int64(0); off < size; {
		chunk := buf.B
		if rest := size - off; rest < int64(len(chunk)) {
			chunk = chunk[:rest]
		}
		n, err := sess.stream.ReadAt(chunk, off)
		_, _ = digest.Write(chunk[:n])
		off += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return strconv.FormatUint(digest.Sum64(), 16), nil
}

// LOCK offset length
func lock(sess *session, args [][]byte) (interface{}, error) {
	offset, n, err := parseRange(args)
	if err != nil {
		return nil, err
	}
	if err := sess.stream.Lock(offset, n); err != nil {
		return nil, err
	}
	return "OK", nil
}

// UNLOCK offset length
func unlock(sess *session, args [][]byte) (interface{}, error) {
	offset, n, err := parseRange(args)
	if err != nil {
		return nil, err
	}
	if err := sess.stream.Unlock(offset, n); err != nil {
		return nil, err
	}
	return "OK", nil
}

func closeStream(sess *session, args [][]byte) (interface{}, error) {
	if len(args) != 0 {
		return nil, ErrWrongArgs
	}
	if err := sess.close(); err != nil {
		return nil, err
	}
	return "OK", nil
}

func parseInt(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrSyntax, "integer %q", b)
	}
	return n, nil
}

func parseRange(args [][]byte) (int64, int64, error) {
	if len(args) != 2 {
		return 0, 0, ErrWrongArgs
	}
	offset, err := parseInt(args[0])
	if err != nil {
		return 0, 0, err
	}
	n, err := parseInt(args[1])
	if err != nil {
		return 0, 0, err
	}
	return offset, n, nil
}
