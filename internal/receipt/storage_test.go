package receipt

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		ctx     context.Context
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		ctx = context.Background()
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			key      string
			savedKey string
			err      error
		)

		BeforeEach(func() {
			key = "1700000000_receipt.jpg"
		})

		JustBeforeEach(func() {
			savedKey, err = storage.Save(ctx, key, []byte("test file content"), "image/jpeg")
		})

		It("writes the file under the base path", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(savedKey).To(Equal(key))
			Expect(filepath.Join(tmpDir, key)).To(BeAnExistingFile())
		})

		When("the key escapes the base path", func() {
			BeforeEach(func() {
				key = "../outside.jpg"
			})

			It("rejects the key", func() {
				Expect(err).To(MatchError(ContainSubstring("invalid storage key")))
				Expect(filepath.Join(filepath.Dir(tmpDir), "outside.jpg")).NotTo(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		When("the file exists", func() {
			BeforeEach(func() {
				_, err := storage.Save(ctx, "test.jpg", []byte("test file content"), "image/jpeg")
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns the file data", func() {
				data, err := storage.Get(ctx, "test.jpg")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("test file content"))
			})
		})

		When("the file does not exist", func() {
			It("returns an error", func() {
				_, err := storage.Get(ctx, "nonexistent.jpg")
				Expect(err).To(MatchError(ContainSubstring("reading file")))
			})
		})
	})

	Describe("Delete", func() {
		When("the file exists", func() {
			BeforeEach(func() {
				_, err := storage.Save(ctx, "test.jpg", []byte("test content"), "image/jpeg")
				Expect(err).NotTo(HaveOccurred())
			})

			It("removes the file from disk", func() {
				Expect(storage.Delete(ctx, "test.jpg")).To(Succeed())
				Expect(filepath.Join(tmpDir, "test.jpg")).NotTo(BeAnExistingFile())
			})
		})

		When("the file does not exist", func() {
			It("returns an error", func() {
				Expect(storage.Delete(ctx, "nonexistent.jpg")).To(MatchError(ContainSubstring("deleting file")))
			})
		})
	})

	Describe("NewLocalStorage", func() {
		It("creates a missing directory", func() {
			storagePath := filepath.Join(GinkgoT().TempDir(), "receipts")
			_, err := NewLocalStorage(storagePath)
			Expect(err).NotTo(HaveOccurred())
			Expect(storagePath).To(BeADirectory())
		})
	})
})

type mockS3 struct {
	objects     map[string][]byte
	contentType map[string]string
	err         error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: map[string][]byte{}, contentType: map[string]string{}}
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	m.objects[key] = data
	m.contentType[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	delete(m.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

var _ = Describe("S3Storage", func() {
	var (
		ctx     context.Context
		client  *mockS3
		storage *S3Storage
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = newMockS3()
		storage = NewS3StorageWithClient(client, "receipts-bucket", "uploads")
	})

	It("stores objects under the prefix with their content type", func() {
		key, err := storage.Save(ctx, "1_receipt.pdf", []byte("%PDF"), "application/pdf")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("1_receipt.pdf"))
		Expect(client.objects).To(HaveKeyWithValue("receipts-bucket/uploads/1_receipt.pdf", []byte("%PDF")))
		Expect(client.contentType).To(HaveKeyWithValue("receipts-bucket/uploads/1_receipt.pdf", "application/pdf"))
	})

	It("reads back and deletes stored objects", func() {
		_, err := storage.Save(ctx, "1_receipt.jpg", []byte("jpeg"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())

		data, err := storage.Get(ctx, "1_receipt.jpg")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("jpeg"))

		Expect(storage.Delete(ctx, "1_receipt.jpg")).To(Succeed())
		Expect(client.objects).To(BeEmpty())
	})

	It("wraps client errors", func() {
		client.err = errors.New("access denied")
		_, err := storage.Save(ctx, "1_receipt.jpg", []byte("jpeg"), "image/jpeg")
		Expect(err).To(MatchError(ContainSubstring("uploading object: access denied")))
	})

	It("requires a bucket", func() {
		_, err := NewS3Storage(ctx, S3Config{})
		Expect(err).To(MatchError("s3 bucket is required"))
	})
})
